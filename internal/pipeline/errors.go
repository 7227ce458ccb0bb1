package pipeline

import "fmt"

// Step failure kinds, reported to the client in error control messages.
const (
	KindTranscriptionFailure   = "TranscriptionFailure"
	KindReplyGenerationFailure = "ReplyGenerationFailure"
	KindSynthesisFailure       = "SynthesisFailure"
)

// StepError identifies which pipeline stage failed so the session can report
// a stable error kind regardless of the underlying cause.
type StepError struct {
	Kind string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
