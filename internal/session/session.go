// Package session binds one client connection to the audio front-end, the
// turn state machine, and the reply pipeline. A single goroutine owns all
// per-session state and is the only writer on the connection.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nemui39/conversational-voice-agent/internal/audio"
	"github.com/nemui39/conversational-voice-agent/internal/config"
	"github.com/nemui39/conversational-voice-agent/internal/dialog"
	"github.com/nemui39/conversational-voice-agent/internal/observability"
	"github.com/nemui39/conversational-voice-agent/internal/pipeline"
	"github.com/nemui39/conversational-voice-agent/internal/stt"
	"github.com/nemui39/conversational-voice-agent/internal/turn"
	"github.com/nemui39/conversational-voice-agent/internal/vad"
	"github.com/nemui39/conversational-voice-agent/internal/work"
)

const writeTimeout = 10 * time.Second

// Events posted into the session loop. The read goroutine and worker-pool
// jobs never touch session state directly; they post one of these.
type event interface{}

type chunkEvent struct{ data []byte }

type controlEvent struct{ msg *ClientMessage }

type pipelineEvent struct {
	gen    uint64
	result *pipeline.Result
	err    error
}

type partialEvent struct {
	gen  uint64
	text string
}

type playbackDoneEvent struct{ gen uint64 }

type cooldownDoneEvent struct{ gen uint64 }

type closeEvent struct{ err error }

// Session is one client connection's state. All fields past the constructor
// are owned by the run loop.
type Session struct {
	id     string
	conn   *websocket.Conn
	cfg    *config.Config
	orch   *pipeline.Orchestrator
	stt    stt.Transcriber
	pool   *work.Pool
	logger zerolog.Logger

	metrics *observability.Metrics

	framer     *audio.Framer
	segmenter  *vad.Segmenter
	controller *turn.Controller
	history    *dialog.History

	events chan event
	done   chan struct{}

	// gen counts pipeline invocations; utteranceGen counts open utterances.
	// Stale async results are discarded by comparing against these.
	gen             uint64
	utteranceGen    uint64
	pipelineRunning bool
	cancelPipeline  context.CancelFunc
	partialInFlight bool
}

// New creates a session for an upgraded connection.
func New(conn *websocket.Conn, cfg *config.Config, orch *pipeline.Orchestrator, transcriber stt.Transcriber, pool *work.Pool) *Session {
	id := observability.NewSessionID()
	metrics := observability.NewSessionMetrics(id)

	history := dialog.NewHistory(cfg.HistoryMaxTurns)
	history.OnEvict = metrics.RecordHistoryEviction

	logger := observability.SessionLogger(id)
	s := &Session{
		id:         id,
		conn:       conn,
		cfg:        cfg,
		orch:       orch,
		stt:        transcriber,
		pool:       pool,
		logger:     logger,
		metrics:    metrics,
		segmenter: vad.NewSegmenter(vad.Config{
			Aggressiveness: cfg.VADAggressiveness,
			SilenceEnd:     time.Duration(cfg.SilenceEndSec * float64(time.Second)),
			MinSpeech:      time.Duration(cfg.MinUtteranceMs) * time.Millisecond,
			MaxUtterance:   time.Duration(cfg.MaxUtteranceSec * float64(time.Second)),
		}),
		controller: turn.NewController(logger),
		history:    history,
		events:     make(chan event, 256),
		done:       make(chan struct{}),
	}
	// Every accepted transition is surfaced to the client, cooldown
	// included. Transitions only happen on the run loop, which is the sole
	// connection writer.
	s.controller.OnChange = func(_, to turn.State) {
		s.sendControl(stateMessage(to.String()))
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Run drives the session until the connection closes. It blocks; the caller
// must have started the read loop first.
func (s *Session) Run() {
	s.metrics.RecordSessionStart()
	s.logger.Info().Msg("Session started")

	defer func() {
		if s.cancelPipeline != nil {
			s.cancelPipeline()
		}
		close(s.done)
		s.metrics.RecordSessionEnd()
		s.logger.Info().Msg("Session ended")
	}()

	ticker := time.NewTicker(time.Duration(s.cfg.PartialIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case e := <-s.events:
			if stop := s.handle(e); stop {
				return
			}
		case <-ticker.C:
			s.maybeRequestPartial()
		}
	}
}

// ReadLoop pumps inbound frames into the session. Run in its own goroutine.
func (s *Session) ReadLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.post(closeEvent{err: err})
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.metrics.RecordAudioBytes("in", int64(len(data)))
			s.post(chunkEvent{data: data})
		case websocket.TextMessage:
			msg, err := DecodeClientMessage(data)
			if err != nil {
				s.post(closeEvent{err: err})
				return
			}
			s.post(controlEvent{msg: msg})
		}
	}
}

// post delivers an event to the run loop unless the session has ended.
func (s *Session) post(e event) {
	select {
	case s.events <- e:
	case <-s.done:
	}
}

// handle processes one event. Returns true when the session should stop.
func (s *Session) handle(e event) bool {
	switch ev := e.(type) {
	case chunkEvent:
		return s.handleChunk(ev.data)
	case controlEvent:
		return s.handleControl(ev.msg)
	case pipelineEvent:
		s.handlePipelineResult(ev)
	case partialEvent:
		s.handlePartialResult(ev)
	case playbackDoneEvent:
		s.handlePlaybackDone(ev.gen)
	case cooldownDoneEvent:
		s.handleCooldownDone(ev.gen)
	case closeEvent:
		s.handleClose(ev.err)
		return true
	}
	return false
}

func (s *Session) handleChunk(data []byte) bool {
	if s.framer == nil {
		s.sendControl(errorMessage("ProtocolFramingError", "audio received before start"))
		s.logger.Warn().Msg("Binary frame before start message, closing")
		return true
	}

	for _, frame := range s.framer.Push(data) {
		if !s.controller.AcceptsFrames() {
			s.metrics.RecordGatedFrame()
			continue
		}
		for _, segEvent := range s.segmenter.Process(frame) {
			s.handleSegmenterEvent(segEvent)
		}
	}
	return false
}

func (s *Session) handleControl(msg *ClientMessage) bool {
	switch msg.Type {
	case msgStart:
		return s.handleStart(msg)
	case msgStop:
		s.logger.Info().Msg("Client requested stop")
		return true
	}
	return false
}

func (s *Session) handleStart(msg *ClientMessage) bool {
	if msg.SampleRate == 0 {
		msg.SampleRate = s.cfg.ClientSampleRate
	}
	if msg.Channels == 0 {
		msg.Channels = 1
	}
	if msg.BitDepth == 0 {
		msg.BitDepth = 16
	}
	framer, err := audio.NewFramer(audio.FramerConfig{
		SrcRate:       msg.SampleRate,
		DstRate:       s.cfg.AnalysisSampleRate,
		FrameMs:       s.cfg.FrameDurationMs,
		Channels:      msg.Channels,
		BitsPerSample: msg.BitDepth,
	})
	if err != nil {
		s.sendControl(errorMessage("AudioFormatError", err.Error()))
		s.metrics.RecordError("AudioFormatError", "framer")
		s.logger.Warn().Err(err).Msg("Unsupported audio format, closing")
		return true
	}

	s.framer = framer
	s.segmenter.Reset()
	s.logger.Info().
		Int("sample_rate", msg.SampleRate).
		Int("channels", msg.Channels).
		Int("bit_depth", msg.BitDepth).
		Msg("Audio stream started")
	s.sendControl(stateMessage("idle"))
	return false
}

func (s *Session) handleSegmenterEvent(ev vad.Event) {
	switch ev.Kind {
	case vad.UtteranceStart:
		s.utteranceGen++
		s.controller.UtteranceStarted()

	case vad.UtteranceDiscarded:
		s.utteranceGen++
		s.metrics.RecordUtterance("discarded")
		s.controller.UtteranceDiscarded()

	case vad.UtteranceEnd:
		s.utteranceGen++
		if ev.TimedOut {
			s.metrics.RecordUtterance("timed_out")
			s.sendControl(errorMessage("SegmentationTimeout", "utterance exceeded maximum duration"))
		} else {
			s.metrics.RecordUtterance("committed")
		}
		s.commitUtterance(ev.Utterance)
	}
}

// commitUtterance hands a finalized utterance to the pipeline. At most one
// pipeline run is in flight; the segmenter cannot open a new utterance until
// the controller returns to Idle, so there is no queue to manage.
func (s *Session) commitUtterance(u *vad.Utterance) {
	if !s.controller.UtteranceCommitted() {
		return
	}

	s.gen++
	gen := s.gen

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelPipeline = cancel

	samples := u.Samples()
	sampleRate := u.SampleRate()
	historyCopy := append([]dialog.Turn(nil), s.history.Turns()...)

	err := s.pool.Submit(func(jobCtx context.Context) {
		runCtx, runCancel := mergeContexts(ctx, jobCtx)
		defer runCancel()
		result, err := s.orch.Run(runCtx, samples, sampleRate, historyCopy, s.metrics)
		s.post(pipelineEvent{gen: gen, result: result, err: err})
	})
	if err != nil {
		cancel()
		s.cancelPipeline = nil
		s.logger.Warn().Err(err).Msg("Pipeline submit failed")
		s.metrics.RecordError("TranscriptionFailure", "worker_pool")
		s.sendControl(errorMessage(pipeline.KindTranscriptionFailure, "server busy"))
		s.controller.TurnAborted()
		return
	}

	s.pipelineRunning = true
	s.controller.PipelineAccepted()
}

func (s *Session) handlePipelineResult(ev pipelineEvent) {
	if ev.gen != s.gen || !s.pipelineRunning {
		s.logger.Debug().Uint64("gen", ev.gen).Msg("Discarding stale pipeline result")
		return
	}
	s.pipelineRunning = false
	if s.cancelPipeline != nil {
		s.cancelPipeline()
		s.cancelPipeline = nil
	}

	if ev.err != nil {
		kind := pipeline.KindTranscriptionFailure
		var stepErr *pipeline.StepError
		if errors.As(ev.err, &stepErr) {
			kind = stepErr.Kind
		}
		s.logger.Error().Err(ev.err).Str("kind", kind).Msg("Pipeline failed")
		s.metrics.RecordError(kind, "pipeline")
		s.sendControl(errorMessage(kind, "processing failed"))
		s.controller.TurnAborted()
		return
	}

	if ev.result.Status == pipeline.StatusRejected {
		s.logger.Debug().Msg("Utterance rejected, no turn produced")
		s.controller.TurnAborted()
		return
	}

	s.history.Append(ev.result.Turn)

	// Final transcript, then visemes, then audio. The client must hold the
	// full timeline before playback begins.
	s.sendControl(finalMessage(ev.result.Transcript))
	s.sendControl(visemesMessage(ev.result.Visemes))
	s.sendBinary(EncodeAudio(ev.result.Turn.AudioWAV))
	s.metrics.RecordAudioBytes("out", int64(len(ev.result.Turn.AudioWAV)))

	s.controller.ReplyReady()

	gen := s.gen
	duration := ev.result.Turn.AudioDuration
	time.AfterFunc(duration, func() {
		s.post(playbackDoneEvent{gen: gen})
	})
}

func (s *Session) handlePlaybackDone(gen uint64) {
	if gen != s.gen {
		return
	}
	if !s.controller.PlaybackFinished() {
		return
	}

	cooldown := time.Duration(s.cfg.CooldownMs) * time.Millisecond
	time.AfterFunc(cooldown, func() {
		s.post(cooldownDoneEvent{gen: gen})
	})
}

func (s *Session) handleCooldownDone(gen uint64) {
	if gen != s.gen {
		return
	}
	s.controller.CooldownElapsed()
}

// maybeRequestPartial schedules a best-effort partial decode of the open
// utterance. At most one partial decode is in flight per session.
func (s *Session) maybeRequestPartial() {
	if s.controller.State() != turn.Listening || s.partialInFlight {
		return
	}
	snapshot := s.segmenter.Snapshot()
	if snapshot == nil || snapshot.SpeechDuration() == 0 {
		return
	}

	gen := s.utteranceGen
	samples := snapshot.Samples()
	sampleRate := snapshot.SampleRate()

	err := s.pool.Submit(func(jobCtx context.Context) {
		result, err := s.stt.Transcribe(jobCtx, samples, sampleRate, stt.ModePartial)
		text := ""
		if err != nil {
			// Partial failures are cosmetic and never surfaced.
			s.logger.Debug().Err(err).Msg("Partial transcription failed")
		} else {
			text = result.Text
		}
		s.post(partialEvent{gen: gen, text: text})
	})
	if err != nil {
		return
	}
	s.partialInFlight = true
}

func (s *Session) handlePartialResult(ev partialEvent) {
	s.partialInFlight = false
	// Drop results for an utterance that already finalized.
	if ev.gen != s.utteranceGen || s.controller.State() != turn.Listening {
		return
	}
	if ev.text == "" {
		return
	}
	s.sendControl(partialMessage(ev.text))
}

func (s *Session) handleClose(err error) {
	var framingErr *ProtocolFramingError
	if errors.As(err, &framingErr) {
		s.metrics.RecordError("ProtocolFramingError", "codec")
		s.sendControl(errorMessage("ProtocolFramingError", framingErr.Reason))
		s.logger.Warn().Str("reason", framingErr.Reason).Msg("Closing on framing error")
		return
	}
	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		s.logger.Warn().Err(err).Msg("Connection read error")
	}
}

func (s *Session) sendControl(msg *ControlMessage) {
	data, err := EncodeControl(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode control message")
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug().Err(err).Str("type", msg.Type).Msg("Control write failed")
	}
}

func (s *Session) sendBinary(data []byte) {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		s.logger.Debug().Err(err).Msg("Binary write failed")
	}
}

// mergeContexts cancels when either parent cancels. The session cancels on
// disconnect; the pool cancels on shutdown.
func mergeContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
