package vad

import (
	"time"

	"github.com/nemui39/conversational-voice-agent/internal/audio"
)

// Utterance accumulates the frames of one contiguous span of detected speech,
// including trailing silence up to the closing threshold. It is created on
// utterance start, finalized or discarded on end, and consumed exactly once
// by the processing pipeline.
type Utterance struct {
	samples    []int16
	sampleRate int
	speech     time.Duration
	total      time.Duration
}

func newUtterance(sampleRate int) *Utterance {
	return &Utterance{sampleRate: sampleRate}
}

func (u *Utterance) addSpeech(f audio.Frame) {
	u.samples = append(u.samples, f.Samples...)
	d := f.Duration()
	u.speech += d
	u.total += d
}

func (u *Utterance) addSilence(f audio.Frame) {
	u.samples = append(u.samples, f.Samples...)
	u.total += f.Duration()
}

func (u *Utterance) snapshot() *Utterance {
	samples := make([]int16, len(u.samples))
	copy(samples, u.samples)
	return &Utterance{
		samples:    samples,
		sampleRate: u.sampleRate,
		speech:     u.speech,
		total:      u.total,
	}
}

// Samples returns the accumulated PCM.
func (u *Utterance) Samples() []int16 {
	return u.samples
}

// SampleRate returns the analysis sample rate of the audio.
func (u *Utterance) SampleRate() int {
	return u.sampleRate
}

// Duration returns the total buffered duration including trailing silence.
func (u *Utterance) Duration() time.Duration {
	return u.total
}

// SpeechDuration returns the accumulated speech-classified duration.
func (u *Utterance) SpeechDuration() time.Duration {
	return u.speech
}
