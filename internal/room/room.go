package room

import (
	"sort"
	"sync"
	"time"
)

// Every new room starts with one file so joiners have something to edit.
const (
	DefaultFileName    = "main.js"
	DefaultFileContent = "// start code here"
)

// UserState is one presence entry, keyed by connection id. A human with two
// connections has two entries.
type UserState struct {
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// ChatMessage is immutable once appended; ordering is append order.
type ChatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Time   string `json:"time"`
}

// Room is one collaboration session. All fields are guarded by mu; only the
// coordinator touches them, holding the lock across each full state
// transition.
type Room struct {
	mu sync.Mutex

	users      map[string]UserState // connID -> presence entry
	files      map[string]string    // fileName -> content
	messages   []ChatMessage
	language   string
	lastOutput string // most recent execution output, overwritten each run

	grace map[string]*time.Timer // pending offline cleanups by connID
}

func newRoom() *Room {
	return &Room{
		users: map[string]UserState{},
		files: map[string]string{DefaultFileName: DefaultFileContent},
		grace: map[string]*time.Timer{},
	}
}

// filesSnapshot copies the file map for broadcast. Callers hold mu.
func (r *Room) filesSnapshot() LoadFiles {
	out := make(map[string]string, len(r.files))
	for name, content := range r.files {
		out[name] = content
	}
	return out
}

// chatSnapshot copies the message history. Callers hold mu.
func (r *Room) chatSnapshot() LoadChat {
	out := make([]ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// userList returns presence entries sorted by name so broadcasts are
// deterministic. Callers hold mu.
func (r *Room) userList() UserListUpdate {
	out := make([]UserState, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cancelGrace stops any pending cleanup for connID. Callers hold mu.
func (r *Room) cancelGrace(connID string) {
	if t := r.grace[connID]; t != nil {
		t.Stop()
		delete(r.grace, connID)
	}
}
