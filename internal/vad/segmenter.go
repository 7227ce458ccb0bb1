// Package vad segments a stream of analysis frames into utterances using
// energy-based voice activity classification with hysteresis.
package vad

import (
	"time"

	"github.com/nemui39/conversational-voice-agent/internal/audio"
)

// EventKind identifies a segmentation event.
type EventKind int

const (
	// UtteranceStart marks the first speech frame after silence.
	UtteranceStart EventKind = iota
	// UtteranceEnd marks a valid utterance closed by trailing silence or the
	// max-duration guard; the event carries the finalized utterance.
	UtteranceEnd
	// UtteranceDiscarded marks an utterance shorter than the minimum speech
	// duration, dropped as noise.
	UtteranceDiscarded
)

func (k EventKind) String() string {
	switch k {
	case UtteranceStart:
		return "utterance_start"
	case UtteranceEnd:
		return "utterance_end"
	case UtteranceDiscarded:
		return "utterance_discarded"
	}
	return "unknown"
}

// Event is emitted by the segmenter as utterance boundaries are detected.
type Event struct {
	Kind      EventKind
	Utterance *Utterance // set on UtteranceEnd
	TimedOut  bool       // true when the max-duration guard forced the close
}

// Config holds segmenter tuning.
type Config struct {
	// Aggressiveness selects the speech/silence RMS threshold pair, 0
	// (lenient, picks up quiet speech) through 3 (strict, rejects noise).
	Aggressiveness int
	// SilenceEnd is the trailing silence that closes an utterance.
	SilenceEnd time.Duration
	// MinSpeech is the minimum accumulated speech below which an utterance
	// is discarded.
	MinSpeech time.Duration
	// MaxUtterance force-closes an utterance that never goes silent.
	MaxUtterance time.Duration
}

// DefaultConfig returns segmenter tuning matching the service defaults.
func DefaultConfig() Config {
	return Config{
		Aggressiveness: 2,
		SilenceEnd:     600 * time.Millisecond,
		MinSpeech:      300 * time.Millisecond,
		MaxUtterance:   30 * time.Second,
	}
}

// thresholds maps aggressiveness to hysteresis RMS levels: speech must
// exceed enter to start, and fall below exit to count as silence.
var thresholds = [4]struct{ enter, exit float64 }{
	{250, 150},
	{400, 250},
	{550, 350},
	{800, 500},
}

// Segmenter classifies frames and emits utterance boundary events.
// Output is deterministic for a fixed frame sequence and configuration.
type Segmenter struct {
	cfg   Config
	enter float64
	exit  float64

	speaking bool
	current  *Utterance
	silence  time.Duration
}

// NewSegmenter creates a segmenter. Aggressiveness outside 0..3 is clamped.
func NewSegmenter(cfg Config) *Segmenter {
	a := cfg.Aggressiveness
	if a < 0 {
		a = 0
	}
	if a > 3 {
		a = 3
	}
	return &Segmenter{
		cfg:   cfg,
		enter: thresholds[a].enter,
		exit:  thresholds[a].exit,
	}
}

// Process classifies one frame and returns any boundary events it produced.
func (s *Segmenter) Process(frame audio.Frame) []Event {
	level := audio.RMS(frame.Samples)

	var isSpeech bool
	if s.speaking {
		isSpeech = level >= s.exit
	} else {
		isSpeech = level >= s.enter
	}

	var events []Event

	switch {
	case isSpeech && !s.speaking:
		s.speaking = true
		s.current = newUtterance(frame.SampleRate)
		s.current.addSpeech(frame)
		s.silence = 0
		events = append(events, Event{Kind: UtteranceStart})

	case isSpeech:
		s.current.addSpeech(frame)
		s.silence = 0

	case s.speaking:
		// Trailing silence is kept in the buffer so the transcriber sees
		// the utterance tail.
		s.current.addSilence(frame)
		s.silence += frame.Duration()
		if s.silence >= s.cfg.SilenceEnd {
			events = append(events, s.finalize(false))
		}
	}

	if s.speaking && s.current.Duration() >= s.cfg.MaxUtterance {
		events = append(events, s.finalize(true))
	}

	return events
}

// finalize closes the open utterance and resets segmentation state.
func (s *Segmenter) finalize(timedOut bool) Event {
	u := s.current
	s.Reset()

	if u.SpeechDuration() < s.cfg.MinSpeech {
		return Event{Kind: UtteranceDiscarded, TimedOut: timedOut}
	}
	return Event{Kind: UtteranceEnd, Utterance: u, TimedOut: timedOut}
}

// Speaking reports whether an utterance is currently open.
func (s *Segmenter) Speaking() bool {
	return s.speaking
}

// Snapshot returns a copy of the open utterance's audio so far, or nil when
// no utterance is open. Used by the partial transcription loop.
func (s *Segmenter) Snapshot() *Utterance {
	if !s.speaking || s.current == nil {
		return nil
	}
	return s.current.snapshot()
}

// Reset drops any open utterance and returns the segmenter to silence.
func (s *Segmenter) Reset() {
	s.speaking = false
	s.current = nil
	s.silence = 0
}
