package room

import "github.com/harshhgithub/CodeSync/internal/exec"

// Event is one outbound broadcast variant. The set is closed: every event the
// coordinator can emit is a named type in this file, so the transport layer
// serializes from typed payloads instead of ad-hoc maps.
type Event interface {
	// Name is the wire event name clients subscribe to.
	Name() string
}

// Broadcaster delivers events to connections. Delivery is at-most-once with
// no retry: a client that misses an event reconciles by rejoining.
type Broadcaster interface {
	// EmitToRoom sends to every connection in the room, sender included.
	EmitToRoom(roomID string, ev Event)
	// EmitToRoomExcept sends to every connection in the room but one.
	EmitToRoomExcept(roomID, connID string, ev Event)
	// EmitToConn sends to a single connection.
	EmitToConn(connID string, ev Event)
}

// LoadFiles carries the full fileName -> content map.
type LoadFiles map[string]string

func (LoadFiles) Name() string { return "loadFiles" }

// LoadChat carries the room's ordered chat history.
type LoadChat []ChatMessage

func (LoadChat) Name() string { return "loadChat" }

// CodeUpdate propagates one file's new content.
type CodeUpdate struct {
	FileName string `json:"fileName"`
	Code     string `json:"code"`
}

func (CodeUpdate) Name() string { return "codeUpdate" }

// UserListUpdate is the room's presence list, offline entries included.
type UserListUpdate []UserState

func (UserListUpdate) Name() string { return "userListUpdate" }

// UserNotification announces a join/leave to the rest of the room.
type UserNotification struct {
	Message string `json:"message"`
	Type    string `json:"type"` // "join" or "leave"
}

func (UserNotification) Name() string { return "userNotification" }

// LanguageChange switches every client's editor mode in lockstep.
type LanguageChange struct {
	Language string `json:"language"`
}

func (LanguageChange) Name() string { return "languageChange" }

// Typing is a transient indicator; clients clear it on a local timeout.
type Typing struct {
	UserName string `json:"userName"`
}

func (Typing) Name() string { return "typing" }

// ReceiveMessage delivers one chat message to the whole room.
type ReceiveMessage ChatMessage

func (ReceiveMessage) Name() string { return "receiveMessage" }

// CodeResponse delivers an execution result to the whole room.
type CodeResponse exec.Result

func (CodeResponse) Name() string { return "codeResponse" }
