// Package pipeline runs the transcription, reply generation, and synthesis
// steps for one finalized utterance as a single cancellable unit.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nemui39/conversational-voice-agent/internal/config"
	"github.com/nemui39/conversational-voice-agent/internal/dialog"
	"github.com/nemui39/conversational-voice-agent/internal/llm"
	"github.com/nemui39/conversational-voice-agent/internal/observability"
	"github.com/nemui39/conversational-voice-agent/internal/stt"
	"github.com/nemui39/conversational-voice-agent/internal/tts"
	"github.com/nemui39/conversational-voice-agent/internal/viseme"
)

// Status classifies how a pipeline run ended.
type Status int

const (
	// StatusCompleted means a turn was produced.
	StatusCompleted Status = iota
	// StatusRejected means the utterance carried no usable speech. Not an
	// error; the session silently returns to listening.
	StatusRejected
)

// Result is the outcome of one pipeline run.
type Result struct {
	Status     Status
	Transcript string
	Turn       dialog.Turn
	Visemes    []viseme.Event
}

// Orchestrator drives the three service steps. One instance is shared by
// all sessions; per-run state lives on the stack.
type Orchestrator struct {
	transcriber stt.Transcriber
	replier     llm.Replier
	synthesizer tts.Synthesizer

	noSpeechThreshold float64
	blockedPhrases    []string
	speakerID         int
	logger            zerolog.Logger
}

// NewOrchestrator wires the pipeline from its three service clients.
func NewOrchestrator(cfg *config.Config, transcriber stt.Transcriber, replier llm.Replier, synthesizer tts.Synthesizer) *Orchestrator {
	return &Orchestrator{
		transcriber:       transcriber,
		replier:           replier,
		synthesizer:       synthesizer,
		noSpeechThreshold: cfg.NoSpeechThreshold,
		blockedPhrases:    cfg.BlockedPhrases(),
		speakerID:         cfg.SpeakerID,
		logger:            observability.GetLogger().With().Str("component", "pipeline").Logger(),
	}
}

// Run processes one finalized utterance. The context is the unit of
// cancellation: cancel it and whichever step is in flight aborts, no turn is
// produced, and no history is written. Failures carry a StepError naming the
// failed stage.
func (o *Orchestrator) Run(ctx context.Context, samples []int16, sampleRate int, history []dialog.Turn, metrics *observability.Metrics) (*Result, error) {
	transcript, err := o.transcribe(ctx, samples, sampleRate, metrics)
	if err != nil {
		return nil, &StepError{Kind: KindTranscriptionFailure, Err: err}
	}
	if transcript == "" {
		metrics.RecordUtterance("rejected")
		return &Result{Status: StatusRejected}, nil
	}

	reply, err := o.generate(ctx, transcript, history, metrics)
	if err != nil {
		return nil, &StepError{Kind: KindReplyGenerationFailure, Err: err}
	}

	synth, err := o.synthesize(ctx, reply, metrics)
	if err != nil {
		return nil, &StepError{Kind: KindSynthesisFailure, Err: err}
	}

	events := viseme.Generate(synth.Timings, synth.Duration)

	turn := dialog.Turn{
		UserText:      transcript,
		ReplyText:     reply,
		AudioWAV:      synth.WAV,
		AudioDuration: synth.Duration,
		CompletedAt:   time.Now(),
	}
	metrics.RecordTurn()

	return &Result{
		Status:     StatusCompleted,
		Transcript: transcript,
		Turn:       turn,
		Visemes:    events,
	}, nil
}

// transcribe runs the final decode and applies the hallucination filter.
// An empty return with nil error means the utterance should be rejected.
func (o *Orchestrator) transcribe(ctx context.Context, samples []int16, sampleRate int, metrics *observability.Metrics) (string, error) {
	metrics.RecordStageStart("stt")
	result, err := o.transcriber.Transcribe(ctx, samples, sampleRate, stt.ModeFinal)
	metrics.RecordStageEnd("stt", err == nil)
	if err != nil {
		return "", err
	}
	return o.filterTranscript(result), nil
}

// filterTranscript drops segments the model likely invented over silence,
// then rejects known hallucination phrases outright.
func (o *Orchestrator) filterTranscript(result *stt.Result) string {
	var parts []string
	for _, seg := range result.Segments {
		if seg.NoSpeechProb > o.noSpeechThreshold {
			continue
		}
		parts = append(parts, seg.Text)
	}

	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" && result.MaxNoSpeechProb() <= o.noSpeechThreshold {
		// No usable segments; trust the whole-result text only when the
		// model did not flag the audio as silence.
		text = strings.TrimSpace(result.Text)
	}
	if text == "" {
		return ""
	}

	for _, phrase := range o.blockedPhrases {
		if text == phrase {
			o.logger.Debug().Str("text", text).Msg("Dropping hallucinated transcript")
			return ""
		}
	}
	return text
}

func (o *Orchestrator) generate(ctx context.Context, transcript string, history []dialog.Turn, metrics *observability.Metrics) (string, error) {
	metrics.RecordStageStart("llm")
	reply, err := o.replier.Generate(ctx, transcript, history)
	metrics.RecordStageEnd("llm", err == nil)
	if err != nil {
		return "", err
	}
	return llm.TrimForSpeech(reply), nil
}

func (o *Orchestrator) synthesize(ctx context.Context, reply string, metrics *observability.Metrics) (*tts.Result, error) {
	metrics.RecordStageStart("tts")
	result, err := o.synthesizer.Synthesize(ctx, reply, o.speakerID)
	metrics.RecordStageEnd("tts", err == nil)
	return result, err
}
