package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice agent service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Audio input contract. Clients stream little-endian int16 mono PCM at
	// ClientSampleRate; analysis and transcription run at AnalysisSampleRate.
	ClientSampleRate   int `envconfig:"CLIENT_SAMPLE_RATE" default:"48000"`
	AnalysisSampleRate int `envconfig:"ANALYSIS_SAMPLE_RATE" default:"16000"`
	FrameDurationMs    int `envconfig:"FRAME_DURATION_MS" default:"20"`

	// Voice activity segmentation
	VADAggressiveness int     `envconfig:"VAD_AGGRESSIVENESS" default:"2"` // 0 (lenient) .. 3 (strict)
	SilenceEndSec     float64 `envconfig:"SILENCE_END_SEC" default:"0.6"`  // trailing silence closing an utterance
	MinUtteranceMs    int     `envconfig:"MIN_UTTERANCE_MS" default:"300"` // shorter speech is discarded as noise
	MaxUtteranceSec   float64 `envconfig:"MAX_UTTERANCE_SEC" default:"30"` // force-close guard

	// Turn taking
	CooldownMs        int `envconfig:"COOLDOWN_MS" default:"500"`          // mic stays muted after playback
	PartialIntervalMs int `envconfig:"PARTIAL_INTERVAL_MS" default:"1000"` // partial transcript cadence
	HistoryMaxTurns   int `envconfig:"HISTORY_MAX_TURNS" default:"6"`

	// Whisper transcription service
	WhisperURL        string  `envconfig:"WHISPER_URL" default:"http://localhost:8081"`
	WhisperLanguage   string  `envconfig:"WHISPER_LANGUAGE" default:"ja"`
	WhisperTimeoutSec int     `envconfig:"WHISPER_TIMEOUT_SEC" default:"30"`
	NoSpeechThreshold float64 `envconfig:"NO_SPEECH_THRESHOLD" default:"0.6"`
	// Comma-separated exact phrases rejected as transcription hallucinations.
	// Empty keeps the built-in default list.
	HallucinationPhrases string `envconfig:"HALLUCINATION_PHRASES" default:""`

	// Gemini reply generation
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY" required:"true"`
	GeminiModel      string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	GeminiTimeoutSec int    `envconfig:"GEMINI_TIMEOUT_SEC" default:"30"`

	// VOICEVOX speech synthesis
	VoicevoxURL        string `envconfig:"VOICEVOX_URL" default:"http://localhost:50021"`
	SpeakerID          int    `envconfig:"SPEAKER_ID" default:"1"`
	VoicevoxTimeoutSec int    `envconfig:"VOICEVOX_TIMEOUT_SEC" default:"30"`

	// Worker pool shared by all sessions for blocking service calls
	WorkerPoolSize  int `envconfig:"WORKER_POOL_SIZE" default:"8"`
	WorkerQueueSize int `envconfig:"WORKER_QUEUE_SIZE" default:"64"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that envconfig tags cannot express.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		return fmt.Errorf("VAD_AGGRESSIVENESS must be 0..3, got %d", c.VADAggressiveness)
	}
	if c.ClientSampleRate <= 0 || c.AnalysisSampleRate <= 0 {
		return fmt.Errorf("sample rates must be positive")
	}
	if c.FrameDurationMs != 10 && c.FrameDurationMs != 20 && c.FrameDurationMs != 30 {
		return fmt.Errorf("FRAME_DURATION_MS must be 10, 20 or 30, got %d", c.FrameDurationMs)
	}
	if c.HistoryMaxTurns < 1 {
		return fmt.Errorf("HISTORY_MAX_TURNS must be at least 1")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be at least 1")
	}
	return nil
}

// BlockedPhrases returns the hallucination phrase blocklist: the configured
// comma-separated list, or the built-in defaults when unset.
func (c *Config) BlockedPhrases() []string {
	if strings.TrimSpace(c.HallucinationPhrases) == "" {
		return defaultHallucinations()
	}
	parts := strings.Split(c.HallucinationPhrases, ",")
	phrases := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}

// defaultHallucinations lists phrases Whisper is known to fabricate from
// silence or background noise.
func defaultHallucinations() []string {
	return []string{
		"ご視聴ありがとうございました",
		"ご視聴いただきありがとうございます",
		"ご視聴ありがとうございます",
		"チャンネル登録お願いします",
		"チャンネル登録よろしくお願いします",
		"おまかせあれ",
		"お疲れ様でした",
		"ではまた",
		"またね",
	}
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
