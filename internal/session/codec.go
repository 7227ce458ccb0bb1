package session

import (
	"encoding/json"
	"fmt"

	"github.com/nemui39/conversational-voice-agent/internal/viseme"
)

// audioMarker tags outbound binary frames carrying synthesized WAV audio so
// the client can discriminate them from any future binary payload type.
const audioMarker = 0x01

// Outbound control message types.
const (
	msgPartial = "partial"
	msgFinal   = "final"
	msgState   = "state"
	msgVisemes = "visemes"
	msgError   = "error"
)

// Inbound control message types.
const (
	msgStart = "start"
	msgStop  = "stop"
)

// ProtocolFramingError marks an unrecoverable wire desynchronization. The
// session closes the connection when it sees one.
type ProtocolFramingError struct {
	Reason string
}

func (e *ProtocolFramingError) Error() string {
	return fmt.Sprintf("protocol framing error: %s", e.Reason)
}

// ControlMessage is one outbound JSON frame.
type ControlMessage struct {
	Type    string        `json:"type"`
	Text    string        `json:"text,omitempty"`
	Value   string        `json:"value,omitempty"`
	Kind    string        `json:"kind,omitempty"`
	Message string        `json:"message,omitempty"`
	Visemes []VisemeFrame `json:"visemes,omitempty"`
}

// VisemeFrame is the wire form of one viseme keyframe, times in seconds.
type VisemeFrame struct {
	T        float64 `json:"t"`
	V        string  `json:"v"`
	W        float64 `json:"w"`
	Dur      float64 `json:"dur"`
	Unvoiced bool    `json:"unvoiced,omitempty"`
}

// ClientMessage is one inbound JSON frame.
type ClientMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	BitDepth   int    `json:"bitDepth,omitempty"`
}

// DecodeClientMessage parses an inbound text frame. Unparseable frames and
// unknown types are framing errors.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &ProtocolFramingError{Reason: "malformed control message"}
	}
	switch msg.Type {
	case msgStart, msgStop:
		return &msg, nil
	default:
		return nil, &ProtocolFramingError{Reason: fmt.Sprintf("unknown control type %q", msg.Type)}
	}
}

// EncodeControl serializes an outbound control message.
func EncodeControl(msg *ControlMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// EncodeAudio wraps synthesized WAV audio in a tagged binary frame.
func EncodeAudio(wav []byte) []byte {
	framed := make([]byte, 0, len(wav)+1)
	framed = append(framed, audioMarker)
	return append(framed, wav...)
}

func partialMessage(text string) *ControlMessage {
	return &ControlMessage{Type: msgPartial, Text: text}
}

func finalMessage(text string) *ControlMessage {
	return &ControlMessage{Type: msgFinal, Text: text}
}

func stateMessage(value string) *ControlMessage {
	return &ControlMessage{Type: msgState, Value: value}
}

func errorMessage(kind, message string) *ControlMessage {
	return &ControlMessage{Type: msgError, Kind: kind, Message: message}
}

func visemesMessage(events []viseme.Event) *ControlMessage {
	frames := make([]VisemeFrame, len(events))
	for i, ev := range events {
		frames[i] = VisemeFrame{
			T:        ev.Offset.Seconds(),
			V:        ev.Code,
			W:        ev.Weight,
			Dur:      ev.Duration.Seconds(),
			Unvoiced: ev.Unvoiced,
		}
	}
	return &ControlMessage{Type: msgVisemes, Visemes: frames}
}
