package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nemui39/conversational-voice-agent/internal/audio"
	"github.com/nemui39/conversational-voice-agent/internal/config"
	"github.com/nemui39/conversational-voice-agent/internal/observability"
	"github.com/nemui39/conversational-voice-agent/internal/resilience"
)

// WhisperClient implements Transcriber against a whisper-server HTTP
// endpoint (POST /inference, multipart WAV upload, verbose_json response).
type WhisperClient struct {
	baseURL    string
	language   string
	timeout    time.Duration
	httpClient *http.Client
	retry      *resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// whisperResponse mirrors the verbose_json response shape.
type whisperResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text         string  `json:"text"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
	Error string `json:"error,omitempty"`
}

// NewWhisperClient creates a whisper-server transcription client.
func NewWhisperClient(cfg *config.Config) *WhisperClient {
	return &WhisperClient{
		baseURL:    strings.TrimRight(cfg.WhisperURL, "/"),
		language:   cfg.WhisperLanguage,
		timeout:    time.Duration(cfg.WhisperTimeoutSec) * time.Second,
		httpClient: &http.Client{},
		retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		breaker: resilience.NewCircuitBreaker(
			"whisper",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Transcribe decodes utterance audio. Partial mode uses a greedy decode for
// latency; final mode uses the full beam.
func (w *WhisperClient) Transcribe(ctx context.Context, samples []int16, sampleRate int, mode Mode) (*Result, error) {
	prepared := Preprocess(samples)
	if prepared == nil {
		// Too quiet to contain speech; an empty result is not an error.
		return &Result{}, nil
	}

	wav := audio.EncodeWAV(prepared, sampleRate)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var result *Result
	err := w.breaker.Call(func() error {
		return resilience.Retry(ctx, func() error {
			r, err := w.post(ctx, wav, mode)
			if err != nil {
				return err
			}
			result = r
			return nil
		}, w.retry, resilience.IsRetryableNetworkError)
	})

	observability.UpdateCircuitBreakerState("whisper", int(w.breaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("whisper")
		return nil, err
	}
	return result, nil
}

func (w *WhisperClient) post(ctx context.Context, wav []byte, mode Mode) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        w.language,
		"temperature":     "0.0",
		"beam_size":       "3",
	}
	if mode == ModePartial {
		fields["beam_size"] = "1"
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to build upload: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("whisper returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("failed to decode whisper response: %w", err)
	}
	if wr.Error != "" {
		return nil, fmt.Errorf("whisper error: %s", wr.Error)
	}

	result := &Result{Text: strings.TrimSpace(wr.Text)}
	for _, seg := range wr.Segments {
		result.Segments = append(result.Segments, Segment{
			Text:         strings.TrimSpace(seg.Text),
			NoSpeechProb: seg.NoSpeechProb,
		})
	}
	return result, nil
}

// HealthCheck probes the whisper server.
func (w *WhisperClient) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
