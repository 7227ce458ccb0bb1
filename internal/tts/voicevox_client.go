package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nemui39/conversational-voice-agent/internal/audio"
	"github.com/nemui39/conversational-voice-agent/internal/config"
	"github.com/nemui39/conversational-voice-agent/internal/observability"
	"github.com/nemui39/conversational-voice-agent/internal/resilience"
)

// VoicevoxClient implements Synthesizer against a VOICEVOX engine:
// POST /audio_query to get the synthesis plan (which carries the mora
// timings), then POST /synthesis with that plan to get WAV audio.
type VoicevoxClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	retry      *resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// NewVoicevoxClient creates a VOICEVOX synthesis client.
func NewVoicevoxClient(cfg *config.Config) *VoicevoxClient {
	return &VoicevoxClient{
		baseURL:    strings.TrimRight(cfg.VoicevoxURL, "/"),
		timeout:    time.Duration(cfg.VoicevoxTimeoutSec) * time.Second,
		httpClient: &http.Client{},
		retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		breaker: resilience.NewCircuitBreaker(
			"voicevox",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Synthesize converts text to speech audio with phoneme timings.
func (v *VoicevoxClient) Synthesize(ctx context.Context, text string, speakerID int) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var result *Result
	err := v.breaker.Call(func() error {
		return resilience.Retry(ctx, func() error {
			r, err := v.synthesizeOnce(ctx, text, speakerID)
			if err != nil {
				return err
			}
			result = r
			return nil
		}, v.retry, resilience.IsRetryableNetworkError)
	})

	observability.UpdateCircuitBreakerState("voicevox", int(v.breaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("voicevox")
		return nil, err
	}
	return result, nil
}

func (v *VoicevoxClient) synthesizeOnce(ctx context.Context, text string, speakerID int) (*Result, error) {
	// The raw query JSON is passed back to /synthesis unmodified so engine
	// fields we do not model (speedScale etc.) survive the round trip.
	rawQuery, err := v.audioQuery(ctx, text, speakerID)
	if err != nil {
		return nil, err
	}

	var timings Timings
	if err := json.Unmarshal(rawQuery, &timings); err != nil {
		return nil, fmt.Errorf("failed to decode audio query: %w", err)
	}

	wav, err := v.synthesis(ctx, rawQuery, speakerID)
	if err != nil {
		return nil, err
	}

	duration, err := audio.WAVDuration(wav)
	if err != nil {
		return nil, fmt.Errorf("voicevox returned invalid WAV: %w", err)
	}

	sampleRate := timings.OutputSamplingRate
	if sampleRate == 0 {
		sampleRate = 24000
	}

	return &Result{
		WAV:        wav,
		SampleRate: sampleRate,
		Duration:   duration,
		Timings:    &timings,
	}, nil
}

func (v *VoicevoxClient) audioQuery(ctx context.Context, text string, speakerID int) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("speaker", strconv.Itoa(speakerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/audio_query?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox audio_query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox audio_query returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (v *VoicevoxClient) synthesis(ctx context.Context, rawQuery []byte, speakerID int) ([]byte, error) {
	q := url.Values{}
	q.Set("speaker", strconv.Itoa(speakerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/synthesis?"+q.Encode(), bytes.NewReader(rawQuery))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox synthesis failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox synthesis returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// HealthCheck probes the VOICEVOX engine version endpoint.
func (v *VoicevoxClient) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/version", nil)
	if err != nil {
		return false, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
