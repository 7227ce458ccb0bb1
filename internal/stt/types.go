package stt

import "context"

// Mode selects the latency/quality tradeoff of a decode.
type Mode int

const (
	// ModePartial is a fast, discardable decode of an utterance still open.
	ModePartial Mode = iota
	// ModeFinal is the full-quality decode of a finalized utterance.
	ModeFinal
)

// Segment is one decoded span with its no-speech probability, used by the
// hallucination filter.
type Segment struct {
	Text         string
	NoSpeechProb float64
}

// Result is the outcome of one transcription call.
type Result struct {
	// Text is the joined text of all segments.
	Text string
	// Segments carries per-segment confidence detail.
	Segments []Segment
}

// MaxNoSpeechProb returns the highest no-speech probability across segments,
// or zero when there are none.
func (r *Result) MaxNoSpeechProb() float64 {
	max := 0.0
	for _, s := range r.Segments {
		if s.NoSpeechProb > max {
			max = s.NoSpeechProb
		}
	}
	return max
}

// Transcriber is the transcription service contract.
type Transcriber interface {
	// Transcribe decodes mono int16 PCM at the given rate.
	Transcribe(ctx context.Context, samples []int16, sampleRate int, mode Mode) (*Result, error)
}
