package room

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/harshhgithub/CodeSync/internal/app"
	"github.com/harshhgithub/CodeSync/internal/exec"
	"github.com/harshhgithub/CodeSync/pkg/metrics"
)

// Runner is the execution gateway contract. Implementations never fail; a
// broken call comes back as a failed Result.
type Runner interface {
	Execute(ctx context.Context, req exec.Request) exec.Result
}

// Coordinator owns all room state and mediates every client event against it.
// Rooms are created on first join and live for the process lifetime unless
// empty-room eviction is enabled. Access is serialized per room: each room's
// lock is held across a full state transition and the broadcasts it produces,
// so events for one room are delivered in mutation order and the last
// broadcast a client sees always matches the authoritative state. Emitting
// under the lock is safe because the broadcast channel never blocks and never
// calls back into room state.
type Coordinator struct {
	log    *slog.Logger
	bc     Broadcaster
	runner Runner

	grace time.Duration
	evict bool

	mu    sync.RWMutex
	rooms map[string]*Room
	conns map[string]string // connID -> roomID, for room inference on disconnect
}

// New builds a coordinator around the given broadcast channel and gateway.
func New(cfg app.Config, log *slog.Logger, bc Broadcaster, runner Runner) *Coordinator {
	return &Coordinator{
		log:    log,
		bc:     bc,
		runner: runner,
		grace:  cfg.GracePeriod,
		evict:  cfg.EvictEmptyRooms,
		rooms:  map[string]*Room{},
		conns:  map[string]string{},
	}
}

// lookup returns an existing room or nil. Mutations against a missing room
// are silent no-ops.
func (c *Coordinator) lookup(roomID string) *Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[roomID]
}

// Join adds connID to roomID under userName, creating the room with one
// default file if needed. The joiner alone gets the full file set and chat
// history; the whole room gets the updated user list; everyone else gets a
// join notification. Empty ids are ignored.
func (c *Coordinator) Join(connID, roomID, userName string) {
	if connID == "" || roomID == "" || userName == "" {
		c.log.Debug("room.join.ignored", "conn", connID, "room", roomID)
		return
	}

	c.mu.Lock()
	rm := c.rooms[roomID]
	if rm == nil {
		rm = newRoom()
		c.rooms[roomID] = rm
		metrics.Rooms.Set(float64(len(c.rooms)))
		c.log.Info("room.created", "room", roomID)
	}
	c.conns[connID] = roomID
	// The room lock is taken before the store lock is released so a
	// concurrent eviction cannot detach this room between lookup and insert.
	rm.mu.Lock()
	c.mu.Unlock()

	// A reconnect under the same identity supersedes any pending cleanup.
	rm.cancelGrace(connID)
	rm.users[connID] = UserState{Name: userName, Online: true}

	c.bc.EmitToConn(connID, rm.filesSnapshot())
	c.bc.EmitToConn(connID, rm.chatSnapshot())
	c.bc.EmitToRoom(roomID, rm.userList())
	c.bc.EmitToRoomExcept(roomID, connID, UserNotification{
		Message: userName + " joined the room",
		Type:    "join",
	})
	rm.mu.Unlock()

	c.log.Debug("room.join", "room", roomID, "user", userName, "conn", connID)
}

// ChangeCode overwrites a file's content, last writer wins, and propagates it
// to everyone except the sender. Unknown room or file is a no-op.
func (c *Coordinator) ChangeCode(connID, roomID, fileName, code string) {
	rm := c.lookup(roomID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.files[fileName]; !ok {
		return
	}
	rm.files[fileName] = code

	c.bc.EmitToRoomExcept(roomID, connID, CodeUpdate{FileName: fileName, Code: code})
}

// ChangeLanguage records the room's language and broadcasts it to every
// connection, sender included, so all editors switch in lockstep.
func (c *Coordinator) ChangeLanguage(roomID, language string) {
	rm := c.lookup(roomID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.language = language

	c.bc.EmitToRoom(roomID, LanguageChange{Language: language})
}

// NotifyTyping relays a transient typing signal to everyone else. Nothing is
// stored.
func (c *Coordinator) NotifyTyping(connID, roomID, userName string) {
	c.bc.EmitToRoomExcept(roomID, connID, Typing{UserName: userName})
}

// CreateFile adds an empty file and broadcasts the full map. Creating an
// existing file is a no-op.
func (c *Coordinator) CreateFile(roomID, fileName string) {
	rm := c.lookup(roomID)
	if rm == nil || fileName == "" {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.files[fileName]; ok {
		return
	}
	rm.files[fileName] = ""

	c.bc.EmitToRoom(roomID, rm.filesSnapshot())
}

// DeleteFile removes a file if present and broadcasts the full map. Removing
// the last file is permitted and leaves the map empty.
func (c *Coordinator) DeleteFile(roomID, fileName string) {
	rm := c.lookup(roomID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.files[fileName]; !ok {
		return
	}
	delete(rm.files, fileName)

	c.bc.EmitToRoom(roomID, rm.filesSnapshot())
}

// SendMessage appends a chat message with a generated timestamp and delivers
// it to the entire room, sender included.
func (c *Coordinator) SendMessage(roomID, userName, text string) {
	rm := c.lookup(roomID)
	if rm == nil {
		return
	}

	msg := ChatMessage{
		Sender: userName,
		Text:   text,
		Time:   time.Now().Format("15:04:05"),
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.messages = append(rm.messages, msg)

	c.bc.EmitToRoom(roomID, ReceiveMessage(msg))
}

// Leave removes the presence entry immediately, bypassing the grace window,
// and notifies the room.
func (c *Coordinator) Leave(connID, roomID string) {
	rm := c.lookup(roomID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	entry, ok := rm.users[connID]
	if !ok {
		rm.mu.Unlock()
		return
	}
	rm.cancelGrace(connID)
	delete(rm.users, connID)

	c.bc.EmitToRoom(roomID, rm.userList())
	c.bc.EmitToRoomExcept(roomID, connID, UserNotification{
		Message: entry.Name + " left the room",
		Type:    "leave",
	})
	rm.mu.Unlock()

	c.mu.Lock()
	if c.conns[connID] == roomID {
		delete(c.conns, connID)
	}
	c.mu.Unlock()

	c.log.Debug("room.leave", "room", roomID, "user", entry.Name, "conn", connID)

	c.maybeEvict(roomID)
}

// Disconnect handles an involuntary drop. The entry stays in the list marked
// offline, and a cancellable cleanup keyed by (room, conn) fires after the
// grace window; page reloads reconnect inside the window without flashing the
// user list. The room is inferred from the connection.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.RLock()
	roomID := c.conns[connID]
	c.mu.RUnlock()
	if roomID == "" {
		return
	}

	rm := c.lookup(roomID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	entry, ok := rm.users[connID]
	if !ok {
		rm.mu.Unlock()
		return
	}
	entry.Online = false
	rm.users[connID] = entry
	rm.cancelGrace(connID)
	rm.grace[connID] = time.AfterFunc(c.grace, func() {
		c.expireGrace(roomID, connID)
	})

	c.bc.EmitToRoom(roomID, rm.userList())
	c.bc.EmitToRoomExcept(roomID, connID, UserNotification{
		Message: entry.Name + " disconnected",
		Type:    "leave",
	})
	rm.mu.Unlock()

	c.log.Debug("room.disconnect", "room", roomID, "user", entry.Name, "conn", connID)
}

// expireGrace runs when a disconnect's grace window elapses. It re-checks
// current state before removing: a user who reconnected must not be deleted.
func (c *Coordinator) expireGrace(roomID, connID string) {
	rm := c.lookup(roomID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	delete(rm.grace, connID)
	entry, ok := rm.users[connID]
	if !ok || entry.Online {
		rm.mu.Unlock()
		return
	}
	delete(rm.users, connID)

	c.bc.EmitToRoom(roomID, rm.userList())
	rm.mu.Unlock()

	c.mu.Lock()
	if c.conns[connID] == roomID {
		delete(c.conns, connID)
	}
	c.mu.Unlock()

	c.log.Debug("room.grace.expired", "room", roomID, "conn", connID)

	c.maybeEvict(roomID)
}

// RunCode submits the code to the gateway on its own goroutine and broadcasts
// the result room-wide, requester included. The code is captured by value:
// file state may change while the run is in flight and is never re-read. The
// room lock is held only after the external call returns, so in-flight runs
// never stall other events.
func (c *Coordinator) RunCode(roomID string, req exec.Request) {
	rm := c.lookup(roomID)
	if rm == nil {
		return
	}

	go func() {
		res := c.runner.Execute(context.Background(), req)

		rm.mu.Lock()
		rm.lastOutput = res.Output
		c.bc.EmitToRoom(roomID, CodeResponse(res))
		rm.mu.Unlock()
	}()
}

// SnapshotFiles returns a copy of the room's file map for archive export.
// The second return is false when the room is unknown.
func (c *Coordinator) SnapshotFiles(roomID string) (map[string]string, bool) {
	rm := c.lookup(roomID)
	if rm == nil {
		return nil, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.filesSnapshot(), true
}

// maybeEvict drops a room once its last presence entry is gone. Off by
// default: rooms normally live for the process lifetime.
func (c *Coordinator) maybeEvict(roomID string) {
	if !c.evict {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rm := c.rooms[roomID]
	if rm == nil {
		return
	}

	rm.mu.Lock()
	empty := len(rm.users) == 0
	rm.mu.Unlock()
	if empty {
		delete(c.rooms, roomID)
		metrics.Rooms.Set(float64(len(c.rooms)))
		c.log.Info("room.evicted", "room", roomID)
	}
}
