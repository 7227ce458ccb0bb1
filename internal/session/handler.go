package session

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nemui39/conversational-voice-agent/internal/config"
	"github.com/nemui39/conversational-voice-agent/internal/observability"
	"github.com/nemui39/conversational-voice-agent/internal/pipeline"
	"github.com/nemui39/conversational-voice-agent/internal/stt"
	"github.com/nemui39/conversational-voice-agent/internal/work"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins during
		// development. Restrict this before exposing publicly.
		return true
	},
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
}

// Handler accepts client connections and runs one Session per connection.
// The pipeline, transcriber, and worker pool are process-wide.
func Handler(cfg *config.Config, orch *pipeline.Orchestrator, transcriber stt.Transcriber, pool *work.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.GetLogger()
			logger.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		s := New(conn, cfg, orch, transcriber, pool)
		go s.ReadLoop()
		s.Run()
	}
}
