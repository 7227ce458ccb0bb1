// Package turn owns the conversational turn state machine for one session.
package turn

import (
	"github.com/rs/zerolog"
)

// State enumerates the turn-taking states.
type State int

const (
	// Idle: no utterance open, microphone frames accepted.
	Idle State = iota
	// Listening: an utterance is open and accumulating.
	Listening
	// Committing: the finalized utterance was handed to the pipeline and
	// awaits acceptance.
	Committing
	// Processing: the pipeline is transcribing, generating and synthesizing.
	Processing
	// Speaking: reply audio was sent; playback duration is elapsing.
	Speaking
	// Cooldown: fixed post-playback delay with the microphone still muted,
	// so the agent does not hear its own reply tail.
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Committing:
		return "committing"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	case Cooldown:
		return "cooldown"
	}
	return "unknown"
}

// Controller is the per-session turn state machine. It is not safe for
// concurrent use; the owning session goroutine drives it exclusively.
type Controller struct {
	state  State
	logger zerolog.Logger

	// OnChange, when set, is invoked after every accepted transition.
	OnChange func(old, new State)
}

// NewController creates a controller in the Idle state.
func NewController(logger zerolog.Logger) *Controller {
	return &Controller{state: Idle, logger: logger}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// AcceptsFrames reports whether inbound microphone frames may be processed.
// Echo prevention: in every state past Listening frames are dropped, never
// buffered.
func (c *Controller) AcceptsFrames() bool {
	return c.state == Idle || c.state == Listening
}

// UtteranceStarted handles a VAD start event: Idle -> Listening.
func (c *Controller) UtteranceStarted() bool {
	return c.transition(Idle, Listening)
}

// UtteranceCommitted handles a valid VAD end event: Listening -> Committing.
func (c *Controller) UtteranceCommitted() bool {
	return c.transition(Listening, Committing)
}

// UtteranceDiscarded handles a too-short utterance: Listening -> Idle.
func (c *Controller) UtteranceDiscarded() bool {
	return c.transition(Listening, Idle)
}

// PipelineAccepted marks the orchestrator accepting the work:
// Committing -> Processing.
func (c *Controller) PipelineAccepted() bool {
	return c.transition(Committing, Processing)
}

// ReplyReady marks synthesized audio and viseme timeline delivery:
// Processing -> Speaking.
func (c *Controller) ReplyReady() bool {
	return c.transition(Processing, Speaking)
}

// TurnAborted returns to Idle from any in-flight pipeline state. Used for
// silent rejections (hallucination filter) and pipeline step failures.
func (c *Controller) TurnAborted() bool {
	switch c.state {
	case Committing, Processing, Speaking:
		c.set(Idle)
		return true
	}
	c.logger.Warn().Str("state", c.state.String()).Msg("Turn abort in unexpected state")
	return false
}

// PlaybackFinished marks elapsed playback: Speaking -> Cooldown.
func (c *Controller) PlaybackFinished() bool {
	return c.transition(Speaking, Cooldown)
}

// CooldownElapsed unmutes the microphone: Cooldown -> Idle.
func (c *Controller) CooldownElapsed() bool {
	return c.transition(Cooldown, Idle)
}

// transition applies from -> to, rejecting (with a warn log) anything else.
// Rejected transitions keep the machine total: stale timer or pipeline
// events cannot wedge the session.
func (c *Controller) transition(from, to State) bool {
	if c.state != from {
		c.logger.Warn().
			Str("state", c.state.String()).
			Str("expected", from.String()).
			Str("target", to.String()).
			Msg("Ignoring invalid turn transition")
		return false
	}
	c.set(to)
	return true
}

func (c *Controller) set(to State) {
	old := c.state
	c.state = to
	c.logger.Debug().
		Str("from", old.String()).
		Str("to", to.String()).
		Msg("Turn state changed")
	if c.OnChange != nil {
		c.OnChange(old, to)
	}
}
