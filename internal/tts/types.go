package tts

import (
	"context"
	"time"
)

// Mora is one phonetic unit with its consonant and vowel durations, as
// reported by the synthesis engine's audio query.
type Mora struct {
	Text            string   `json:"text"`
	Consonant       *string  `json:"consonant"`
	ConsonantLength *float64 `json:"consonant_length"`
	Vowel           string   `json:"vowel"`
	VowelLength     float64  `json:"vowel_length"`
}

// AccentPhrase groups moras with an optional trailing pause.
type AccentPhrase struct {
	Moras     []Mora `json:"moras"`
	PauseMora *Mora  `json:"pause_mora"`
}

// Timings carries the phoneme/duration data needed to build a viseme
// timeline for one synthesized reply.
type Timings struct {
	AccentPhrases      []AccentPhrase `json:"accent_phrases"`
	PrePhonemeLength   float64        `json:"prePhonemeLength"`
	PostPhonemeLength  float64        `json:"postPhonemeLength"`
	OutputSamplingRate int            `json:"outputSamplingRate"`
}

// Result is one synthesized reply: WAV audio plus timing metadata.
type Result struct {
	WAV        []byte
	SampleRate int
	Duration   time.Duration
	Timings    *Timings
}

// Synthesizer is the speech synthesis service contract.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, speakerID int) (*Result, error)
}
