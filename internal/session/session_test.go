package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemui39/conversational-voice-agent/internal/audio"
	"github.com/nemui39/conversational-voice-agent/internal/config"
	"github.com/nemui39/conversational-voice-agent/internal/dialog"
	"github.com/nemui39/conversational-voice-agent/internal/pipeline"
	"github.com/nemui39/conversational-voice-agent/internal/stt"
	"github.com/nemui39/conversational-voice-agent/internal/tts"
	"github.com/nemui39/conversational-voice-agent/internal/work"

	"github.com/rs/zerolog"
)

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, samples []int16, sampleRate int, mode stt.Mode) (*stt.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &stt.Result{
		Text:     s.text,
		Segments: []stt.Segment{{Text: s.text, NoSpeechProb: 0.1}},
	}, nil
}

type stubReplier struct {
	reply string
	err   error
}

func (s *stubReplier) Generate(ctx context.Context, transcript string, history []dialog.Turn) (string, error) {
	return s.reply, s.err
}

type stubSynthesizer struct {
	err error
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string, speakerID int) (*tts.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &tts.Result{
		WAV:        audio.EncodeWAV(make([]int16, 2400), 24000),
		SampleRate: 24000,
		Duration:   100 * time.Millisecond,
		Timings: &tts.Timings{
			AccentPhrases: []tts.AccentPhrase{
				{Moras: []tts.Mora{{Text: "ア", Vowel: "a", VowelLength: 0.1}}},
			},
		},
	}, nil
}

func testSessionConfig() *config.Config {
	return &config.Config{
		ClientSampleRate:   16000,
		AnalysisSampleRate: 16000,
		FrameDurationMs:    20,
		VADAggressiveness:  2,
		SilenceEndSec:      0.4,
		MinUtteranceMs:     300,
		MaxUtteranceSec:    30,
		CooldownMs:         50,
		PartialIntervalMs:  60000, // keep partials out of the message stream
		HistoryMaxTurns:    6,
		NoSpeechThreshold:  0.6,
		SpeakerID:          1,
	}
}

// dialSession spins up a server around the given service stubs and returns a
// connected client.
func dialSession(t *testing.T, cfg *config.Config, transcriber stt.Transcriber, replier *stubReplier, synthesizer *stubSynthesizer) *websocket.Conn {
	t.Helper()

	pool := work.NewPool(2, 8, zerolog.Nop())
	pool.Start()
	t.Cleanup(pool.Stop)

	orch := pipeline.NewOrchestrator(cfg, transcriber, replier, synthesizer)
	srv := httptest.NewServer(Handler(cfg, orch, transcriber, pool))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func sendPCM(t *testing.T, conn *websocket.Conn, amplitude int16, duration time.Duration) {
	t.Helper()
	n := int(duration.Seconds() * 16000)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = amplitude
	}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, audio.SamplesToBytes(samples)))
}

// collectUntil reads messages until pred returns true, returning every
// control message seen and any binary payloads.
func collectUntil(t *testing.T, conn *websocket.Conn, pred func(msgs []ControlMessage, binaries [][]byte) bool) ([]ControlMessage, [][]byte) {
	t.Helper()
	var msgs []ControlMessage
	var binaries [][]byte
	for !pred(msgs, binaries) {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err, "messages so far: %v", msgs)
		switch msgType {
		case websocket.TextMessage:
			var msg ControlMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			msgs = append(msgs, msg)
		case websocket.BinaryMessage:
			binaries = append(binaries, data)
		}
	}
	return msgs, binaries
}

func hasMessage(msgs []ControlMessage, msgType, value string) bool {
	for _, m := range msgs {
		if m.Type == msgType && (value == "" || m.Value == value) {
			return true
		}
	}
	return false
}

func TestSession_FullTurn(t *testing.T) {
	conn := dialSession(t, testSessionConfig(), &stubTranscriber{text: "こんにちは"}, &stubReplier{reply: "やあ。"}, &stubSynthesizer{})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","sampleRate":16000,"channels":1,"bitDepth":16}`)))

	sendPCM(t, conn, 5000, 600*time.Millisecond)
	sendPCM(t, conn, 0, 600*time.Millisecond)

	msgs, binaries := collectUntil(t, conn, func(msgs []ControlMessage, binaries [][]byte) bool {
		return len(binaries) > 0 && hasMessage(msgs, "state", "speaking")
	})

	assert.True(t, hasMessage(msgs, "state", "listening"), "expected listening state: %v", msgs)
	assert.True(t, hasMessage(msgs, "state", "committing"), "expected committing state: %v", msgs)
	assert.True(t, hasMessage(msgs, "state", "processing"), "expected processing state: %v", msgs)
	assert.True(t, hasMessage(msgs, "final", ""), "expected final transcript: %v", msgs)
	assert.True(t, hasMessage(msgs, "visemes", ""), "expected viseme timeline: %v", msgs)

	// Final transcript carries what the transcriber produced
	for _, m := range msgs {
		if m.Type == "final" {
			assert.Equal(t, "こんにちは", m.Text)
		}
	}

	// The binary frame is marker-tagged WAV
	require.NotEmpty(t, binaries)
	payload := binaries[0]
	require.Greater(t, len(payload), 1)
	assert.Equal(t, byte(audioMarker), payload[0])
	_, _, err := audio.DecodeWAV(payload[1:])
	assert.NoError(t, err)

	// Ordering: final precedes visemes precedes audio; audio precedes speaking
	idx := map[string]int{}
	for i, m := range msgs {
		if _, seen := idx[m.Type+m.Value]; !seen {
			idx[m.Type+m.Value] = i
		}
	}
	assert.Less(t, idx["final"], idx["visemes"], "final must precede visemes")
}

func TestSession_CooldownAfterPlayback(t *testing.T) {
	// Every turn state is surfaced: speaking, then cooldown while the mic
	// is still gated, then idle once the cooldown elapses.
	conn := dialSession(t, testSessionConfig(), &stubTranscriber{text: "こんにちは"}, &stubReplier{reply: "やあ。"}, &stubSynthesizer{})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","sampleRate":16000,"channels":1,"bitDepth":16}`)))

	sendPCM(t, conn, 5000, 600*time.Millisecond)
	sendPCM(t, conn, 0, 600*time.Millisecond)

	msgs, _ := collectUntil(t, conn, func(msgs []ControlMessage, binaries [][]byte) bool {
		sawSpeaking := false
		for _, m := range msgs {
			if m.Type != "state" {
				continue
			}
			if m.Value == "speaking" {
				sawSpeaking = true
			}
			if sawSpeaking && m.Value == "idle" {
				return true
			}
		}
		return false
	})

	speakIdx, coolIdx, idleIdx := -1, -1, -1
	for i, m := range msgs {
		if m.Type != "state" {
			continue
		}
		switch m.Value {
		case "speaking":
			if speakIdx == -1 {
				speakIdx = i
			}
		case "cooldown":
			if coolIdx == -1 {
				coolIdx = i
			}
		case "idle":
			if speakIdx != -1 && idleIdx == -1 {
				idleIdx = i
			}
		}
	}
	require.NotEqual(t, -1, speakIdx, "expected speaking state: %v", msgs)
	require.NotEqual(t, -1, coolIdx, "expected cooldown state: %v", msgs)
	require.NotEqual(t, -1, idleIdx, "expected idle state after playback: %v", msgs)
	assert.Less(t, speakIdx, coolIdx, "speaking must precede cooldown")
	assert.Less(t, coolIdx, idleIdx, "cooldown must precede the final idle")
}

func TestSession_SynthesisFailureReportsError(t *testing.T) {
	conn := dialSession(t, testSessionConfig(), &stubTranscriber{text: "こんにちは"}, &stubReplier{reply: "やあ。"}, &stubSynthesizer{err: context.DeadlineExceeded})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","sampleRate":16000,"channels":1,"bitDepth":16}`)))

	sendPCM(t, conn, 5000, 600*time.Millisecond)
	sendPCM(t, conn, 0, 600*time.Millisecond)

	msgs, binaries := collectUntil(t, conn, func(msgs []ControlMessage, binaries [][]byte) bool {
		for _, m := range msgs {
			if m.Type == "error" {
				return true
			}
		}
		return false
	})

	var errMsg ControlMessage
	for _, m := range msgs {
		if m.Type == "error" {
			errMsg = m
		}
	}
	assert.Equal(t, "SynthesisFailure", errMsg.Kind)
	assert.Empty(t, binaries, "no audio may be sent for a failed turn")

	// The session recovers to idle
	msgs, _ = collectUntil(t, conn, func(msgs []ControlMessage, binaries [][]byte) bool {
		return hasMessage(msgs, "state", "idle")
	})
	assert.True(t, hasMessage(msgs, "state", "idle"))
}

func TestSession_ShortUtteranceProducesNothing(t *testing.T) {
	replier := &stubReplier{reply: "unused"}
	conn := dialSession(t, testSessionConfig(), &stubTranscriber{text: "short"}, replier, &stubSynthesizer{})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","sampleRate":16000,"channels":1,"bitDepth":16}`)))

	// 100ms of speech is below the 300ms minimum
	sendPCM(t, conn, 5000, 100*time.Millisecond)
	sendPCM(t, conn, 0, 600*time.Millisecond)

	msgs, _ := collectUntil(t, conn, func(msgs []ControlMessage, binaries [][]byte) bool {
		// listening followed by a return to idle means the discard path ran
		return len(msgs) > 0 && hasMessage(msgs, "state", "listening") && msgs[len(msgs)-1].Value == "idle"
	})

	assert.False(t, hasMessage(msgs, "state", "committing"), "discarded utterance must not reach the pipeline: %v", msgs)
	assert.False(t, hasMessage(msgs, "final", ""))
}

func TestSession_AudioBeforeStartClosesConnection(t *testing.T) {
	conn := dialSession(t, testSessionConfig(), &stubTranscriber{}, &stubReplier{}, &stubSynthesizer{})

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0, 0, 0, 0}))

	// Expect a framing error message and then connection close
	sawError := false
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType == websocket.TextMessage {
			var msg ControlMessage
			if json.Unmarshal(data, &msg) == nil && msg.Type == "error" {
				assert.Equal(t, "ProtocolFramingError", msg.Kind)
				sawError = true
			}
		}
	}
	assert.True(t, sawError, "expected a ProtocolFramingError before close")
}

func TestSession_StopClosesCleanly(t *testing.T) {
	conn := dialSession(t, testSessionConfig(), &stubTranscriber{}, &stubReplier{}, &stubSynthesizer{})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","sampleRate":16000,"channels":1,"bitDepth":16}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)))

	// The server closes the connection; the read eventually errors out
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
