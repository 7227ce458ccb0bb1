package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/nemui39/conversational-voice-agent/internal/config"
	"github.com/nemui39/conversational-voice-agent/internal/dialog"
)

// systemInstruction steers replies toward short spoken-dialogue answers.
// Persona content beyond this is supplied by deployment configuration.
const systemInstruction = "あなたは音声対話エージェントです。返答は短く、話し言葉で答えてください。箇条書きや記号は使わないでください。"

// GeminiClient implements Replier using the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini reply-generation client.
func NewGeminiClient(cfg *config.Config) (*GeminiClient, error) {
	reqTimeout := time.Duration(cfg.GeminiTimeoutSec) * time.Second
	cl, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			Timeout: &reqTimeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		client:  cl,
		model:   cfg.GeminiModel,
		timeout: reqTimeout,
	}, nil
}

// Generate produces a reply for the transcript given the history window.
func (g *GeminiClient) Generate(ctx context.Context, transcript string, history []dialog.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(history)*2+1)
	for _, t := range history {
		contents = append(contents,
			genai.NewContentFromText(t.UserText, genai.RoleUser),
			genai.NewContentFromText(t.ReplyText, genai.RoleModel),
		)
	}
	contents = append(contents, genai.NewContentFromText(transcript, genai.RoleUser))

	temp := float32(0.7)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   512,
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			lastErr = err
			if retriable(err) && ctx.Err() == nil {
				time.Sleep(time.Duration(300*(attempt+1)) * time.Millisecond)
				continue
			}
			return "", err
		}
		if text := strings.TrimSpace(resp.Text()); text != "" {
			return text, nil
		}
		lastErr = errors.New("empty model response")
	}
	return "", lastErr
}

// HealthCheck verifies the client is usable. No request is made to avoid
// burning quota; configuration errors surface at construction time.
func (g *GeminiClient) HealthCheck(ctx context.Context) (bool, error) {
	if g.client == nil {
		return false, errors.New("gemini client not initialized")
	}
	return true, nil
}

func retriable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected EOF") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "RST_STREAM") ||
		strings.Contains(s, "connection reset")
}
