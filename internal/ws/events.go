package ws

import (
	"encoding/json"
	"errors"
)

// Inbound event vocabulary. The set is closed: dispatch matches these
// exhaustively and anything else is rejected at decode time.
const (
	evJoin           = "join"
	evCodeChange     = "codeChange"
	evLanguageChange = "languageChange"
	evTyping         = "typing"
	evSendMessage    = "sendMessage"
	evCreateFile     = "createFile"
	evDeleteFile     = "deleteFile"
	evCompileCode    = "compileCode"
	evLeaveRoom      = "leaveRoom"
)

var errUnknownEvent = errors.New("unknown event")

// envelope is the wire framing for both directions: {"event": ..., "data": ...}
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

type codeChangePayload struct {
	RoomID   string `json:"roomId"`
	FileName string `json:"fileName"`
	Code     string `json:"code"`
}

type languageChangePayload struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

type typingPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

type sendMessagePayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
	Text     string `json:"text"`
}

type filePayload struct {
	RoomID   string `json:"roomId"`
	FileName string `json:"fileName"`
}

type compilePayload struct {
	RoomID   string `json:"roomId"`
	Code     string `json:"code"`
	Language string `json:"language"`
	Version  string `json:"version"`
	Input    string `json:"input"`
}

// parseEnvelope decodes one frame and validates the event name against the
// closed vocabulary.
func parseEnvelope(b []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return envelope{}, err
	}
	switch env.Event {
	case evJoin, evCodeChange, evLanguageChange, evTyping, evSendMessage,
		evCreateFile, evDeleteFile, evCompileCode, evLeaveRoom:
		return env, nil
	default:
		return envelope{}, errUnknownEvent
	}
}
