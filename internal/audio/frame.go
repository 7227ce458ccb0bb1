package audio

import (
	"fmt"
	"math"
	"time"
)

// Frame is a fixed-duration block of mono PCM samples. Frames are immutable
// once produced by the Framer; ownership passes downstream with the value.
type Frame struct {
	Seq        uint64
	Samples    []int16
	SampleRate int
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// FormatError reports malformed or unsupported input audio.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("audio format error: %s", e.Reason)
}

// RMS calculates the root mean square of audio samples.
// Used for energy-based voice activity classification.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// BytesToSamples converts little-endian int16 PCM bytes to samples.
// The byte slice length must be even.
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, &FormatError{Reason: "PCM data length must be even (16-bit samples)"}
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// SamplesToBytes converts samples to little-endian int16 PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}
