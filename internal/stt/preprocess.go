package stt

import "math"

const (
	// quietRMSGate skips decoding audio too quiet to contain speech.
	quietRMSGate = 200.0
	// targetRMS is the normalization target amplitude.
	targetRMS = 3000.0
)

// Preprocess conditions utterance audio before decoding: DC offset removal,
// a quiet gate, and RMS normalization with a clamped gain. Returns nil when
// the audio is below the quiet gate.
func Preprocess(samples []int16) []int16 {
	if len(samples) == 0 {
		return nil
	}

	mean := 0.0
	for _, s := range samples {
		mean += float64(s)
	}
	mean /= float64(len(samples))

	sum := 0.0
	centered := make([]float64, len(samples))
	for i, s := range samples {
		v := float64(s) - mean
		centered[i] = v
		sum += v * v
	}
	rms := math.Sqrt(sum/float64(len(samples)) + 1e-9)

	if rms < quietRMSGate {
		return nil
	}

	gain := targetRMS / rms
	if gain < 0.2 {
		gain = 0.2
	}
	if gain > 6.0 {
		gain = 6.0
	}

	out := make([]int16, len(samples))
	for i, v := range centered {
		scaled := v * gain
		if scaled > math.MaxInt16 {
			scaled = math.MaxInt16
		}
		if scaled < math.MinInt16 {
			scaled = math.MinInt16
		}
		out[i] = int16(scaled)
	}
	return out
}
