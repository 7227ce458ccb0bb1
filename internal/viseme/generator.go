package viseme

import (
	"math"
	"time"

	"github.com/nemui39/conversational-voice-agent/internal/tts"
)

// Event is one mouth-shape keyframe. Offset is measured from the start of
// the reply audio; Duration is how long the shape is held.
type Event struct {
	Offset   time.Duration
	Code     string
	Weight   float64
	Duration time.Duration
	Unvoiced bool
}

// vowelToViseme maps engine vowel labels to mouth-shape codes. Uppercase
// vowels are devoiced variants of the same shape.
var vowelToViseme = map[string]string{
	"a": "A", "i": "I", "u": "U", "e": "E", "o": "O",
	"A": "A", "I": "I", "U": "U", "E": "E", "O": "O",
	"N": "N",
}

const (
	// unvoicedWeight dampens devoiced vowels so the mouth barely opens.
	unvoicedWeight = 0.65
	// shortVowel is the length below which a vowel's weight is ramped
	// down proportionally; very short vowels read as a flick, not a
	// full mouth shape.
	shortVowel = 50 * time.Millisecond
	// clampTolerance is one audio frame. Timelines within this of the
	// audio duration are left as-is.
	clampTolerance = 20 * time.Millisecond
)

// Generate builds the viseme timeline for one synthesized reply. Consonant
// phases advance time without emitting an event (the mouth is in transition);
// each vowel phase emits one keyframe. The timeline is clamped so it never
// outruns the audio and is padded with a closing rest when it falls short.
func Generate(timings *tts.Timings, audioDuration time.Duration) []Event {
	if timings == nil {
		return nil
	}

	events := make([]Event, 0, 32)
	t := secondsToDuration(timings.PrePhonemeLength)

	for _, phrase := range timings.AccentPhrases {
		for _, mora := range phrase.Moras {
			if mora.ConsonantLength != nil {
				t += secondsToDuration(*mora.ConsonantLength)
			}

			code, ok := vowelToViseme[mora.Vowel]
			if !ok {
				code = "N"
			}
			vowelLen := secondsToDuration(mora.VowelLength)
			if vowelLen > 0 {
				unvoiced := isUnvoiced(mora.Vowel)
				events = append(events, Event{
					Offset:   t,
					Code:     code,
					Weight:   weightFor(vowelLen, unvoiced),
					Duration: vowelLen,
					Unvoiced: unvoiced,
				})
			}
			t += vowelLen
		}

		if phrase.PauseMora != nil {
			pauseLen := secondsToDuration(phrase.PauseMora.VowelLength)
			if pauseLen > 0 {
				events = append(events, Event{
					Offset:   t,
					Code:     "N",
					Weight:   1.0,
					Duration: pauseLen,
				})
			}
			t += pauseLen
		}
	}

	return clamp(events, audioDuration)
}

// weightFor interpolates the keyframe weight from the vowel length so short
// vowels transition smoothly instead of snapping to a full shape.
func weightFor(vowelLen time.Duration, unvoiced bool) float64 {
	w := 1.0
	if unvoiced {
		w = unvoicedWeight
	}
	if vowelLen < shortVowel {
		w *= float64(vowelLen) / float64(shortVowel)
	}
	return w
}

// clamp bounds the timeline to the audio duration. Events past the end are
// dropped, a straddling event is shortened, and a trailing rest is appended
// when the timeline ends early. Drift within one frame is tolerated.
func clamp(events []Event, audioDuration time.Duration) []Event {
	if audioDuration <= 0 || len(events) == 0 {
		return events
	}

	out := events[:0]
	for _, ev := range events {
		if ev.Offset >= audioDuration {
			break
		}
		if end := ev.Offset + ev.Duration; end > audioDuration {
			ev.Duration = audioDuration - ev.Offset
		}
		out = append(out, ev)
	}
	if len(out) == 0 {
		return nil
	}

	last := out[len(out)-1]
	tail := last.Offset + last.Duration
	if gap := audioDuration - tail; gap > clampTolerance {
		out = append(out, Event{
			Offset:   tail,
			Code:     "N",
			Weight:   1.0,
			Duration: gap,
		})
	}
	return out
}

func isUnvoiced(vowel string) bool {
	switch vowel {
	case "A", "I", "U", "E", "O":
		return true
	}
	return false
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
