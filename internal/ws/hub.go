package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"log/slog"

	"github.com/google/uuid"

	"github.com/harshhgithub/CodeSync/internal/exec"
	"github.com/harshhgithub/CodeSync/internal/room"
	"github.com/harshhgithub/CodeSync/pkg/metrics"
)

// Hub is the broadcast channel: it tracks live connections and their room
// groups, and fans coordinator events out to them. It never touches room
// state itself.
type Hub struct {
	log *slog.Logger
	co  *room.Coordinator

	mu    sync.RWMutex
	conns map[string]*Conn            // all live connections by connID
	rooms map[string]map[string]*Conn // room broadcast groups
}

// NewHub sets up an empty hub; Bind must be called before serving.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		log:   logger,
		conns: map[string]*Conn{},
		rooms: map[string]map[string]*Conn{},
	}
}

// Bind attaches the coordinator. The hub dispatches inbound events to it and
// the coordinator emits back through the hub, so the two are wired after
// construction.
func (h *Hub) Bind(co *room.Coordinator) { h.co = co }

// ServeWS handles a new /ws connection for its whole lifetime.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	c := NewConn(conn, uuid.NewString())
	h.addConn(c)
	metrics.Connections.Inc()
	h.log.Debug("ws.connected", "conn", c.id)

	go c.WriteLoop(ctx)

	for {
		payload, ok := c.Read(ctx)
		if !ok {
			break
		}
		h.dispatch(c, payload)
	}

	// Involuntary drop: presence goes offline and the grace window starts.
	if c.roomID != "" {
		h.co.Disconnect(c.id)
	}
	h.removeConn(c)
	metrics.Connections.Dec()
	h.log.Debug("ws.disconnected", "conn", c.id)
	_ = c.Close()
}

// dispatch decodes one frame and routes it to the matching coordinator
// operation. A bad frame is dropped; it never takes the connection down.
func (h *Hub) dispatch(c *Conn, payload []byte) {
	env, err := parseEnvelope(payload)
	if err != nil {
		h.log.Warn("ws.event.rejected", "conn", c.id, "err", err)
		return
	}
	metrics.EventsTotal.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case evJoin:
		var p joinPayload
		if json.Unmarshal(env.Data, &p) != nil || p.RoomID == "" || p.UserName == "" {
			return
		}
		// Joining a new room implies leaving the old one first.
		if c.roomID != "" && c.roomID != p.RoomID {
			h.co.Leave(c.id, c.roomID)
			h.leaveGroup(c)
		}
		h.joinGroup(c, p.RoomID)
		c.roomID = p.RoomID
		h.co.Join(c.id, p.RoomID, p.UserName)

	case evCodeChange:
		var p codeChangePayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		h.co.ChangeCode(c.id, p.RoomID, p.FileName, p.Code)

	case evLanguageChange:
		var p languageChangePayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		h.co.ChangeLanguage(p.RoomID, p.Language)

	case evTyping:
		var p typingPayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		h.co.NotifyTyping(c.id, p.RoomID, p.UserName)

	case evSendMessage:
		var p sendMessagePayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		h.co.SendMessage(p.RoomID, p.UserName, p.Text)

	case evCreateFile:
		var p filePayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		h.co.CreateFile(p.RoomID, p.FileName)

	case evDeleteFile:
		var p filePayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		h.co.DeleteFile(p.RoomID, p.FileName)

	case evCompileCode:
		var p compilePayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		h.co.RunCode(p.RoomID, exec.Request{
			Language: p.Language,
			Version:  p.Version,
			Code:     p.Code,
			Stdin:    p.Input,
		})

	case evLeaveRoom:
		// Room inferred from the connection; payload is empty.
		if c.roomID != "" {
			h.co.Leave(c.id, c.roomID)
			h.leaveGroup(c)
			c.roomID = ""
		}
	}
}

// EmitToRoom implements room.Broadcaster.
func (h *Hub) EmitToRoom(roomID string, ev room.Event) {
	b, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomID] {
		c.Send(b)
	}
}

// EmitToRoomExcept implements room.Broadcaster.
func (h *Hub) EmitToRoomExcept(roomID, connID string, ev room.Event) {
	b, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.rooms[roomID] {
		if id != connID {
			c.Send(b)
		}
	}
}

// EmitToConn implements room.Broadcaster.
func (h *Hub) EmitToConn(connID string, ev room.Event) {
	b, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c != nil {
		c.Send(b)
	}
}

// encode serializes one outbound event into the wire envelope.
func (h *Hub) encode(ev room.Event) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("ws.encode", "event", ev.Name(), "err", err)
		return nil, false
	}
	b, err := json.Marshal(envelope{Event: ev.Name(), Data: data})
	if err != nil {
		h.log.Error("ws.encode", "event", ev.Name(), "err", err)
		return nil, false
	}
	return b, true
}

func (h *Hub) addConn(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) removeConn(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	if c.roomID != "" {
		if grp := h.rooms[c.roomID]; grp != nil {
			delete(grp, c.id)
			if len(grp) == 0 {
				delete(h.rooms, c.roomID)
			}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) joinGroup(c *Conn, roomID string) {
	h.mu.Lock()
	grp := h.rooms[roomID]
	if grp == nil {
		grp = map[string]*Conn{}
		h.rooms[roomID] = grp
	}
	grp[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) leaveGroup(c *Conn) {
	h.mu.Lock()
	if grp := h.rooms[c.roomID]; grp != nil {
		delete(grp, c.id)
		if len(grp) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
	h.mu.Unlock()
}
