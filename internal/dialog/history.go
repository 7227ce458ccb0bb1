// Package dialog holds the conversation record: completed turns and the
// bounded per-session history window.
package dialog

import (
	"time"
)

// Turn is one completed request/response pair. Immutable once appended to
// history.
type Turn struct {
	// UserText is the final transcript of the user's utterance.
	UserText string
	// ReplyText is the generated reply, trimmed for speech.
	ReplyText string
	// AudioWAV is the synthesized reply audio.
	AudioWAV []byte
	// AudioDuration is the playback length of AudioWAV.
	AudioDuration time.Duration
	// CompletedAt is when synthesis finished.
	CompletedAt time.Time
}

// History is a bounded FIFO of completed turns, owned by one session and
// never shared. When full, the oldest turn is evicted.
type History struct {
	turns []Turn
	max   int
	// OnEvict, when set, is called once per evicted turn.
	OnEvict func()
}

// NewHistory creates a history retaining at most max turns.
func NewHistory(max int) *History {
	if max < 1 {
		max = 1
	}
	return &History{max: max}
}

// Append adds a completed turn, evicting the oldest when over capacity.
func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
	for len(h.turns) > h.max {
		copy(h.turns, h.turns[1:])
		h.turns = h.turns[:len(h.turns)-1]
		if h.OnEvict != nil {
			h.OnEvict()
		}
	}
}

// Turns returns the retained turns oldest-first. The caller must not mutate
// the returned slice.
func (h *History) Turns() []Turn {
	return h.turns
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	return len(h.turns)
}
