package room

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/harshhgithub/CodeSync/internal/app"
	"github.com/harshhgithub/CodeSync/internal/exec"
)

// Records every emission so tests can assert on exactly what was broadcast
type emission struct {
	kind   string // "room", "except", "conn"
	roomID string
	connID string // target for "conn", excluded sender for "except"
	ev     Event
}

type fakeBroadcaster struct {
	mu  sync.Mutex
	log []emission
}

func (f *fakeBroadcaster) EmitToRoom(roomID string, ev Event) {
	f.mu.Lock()
	f.log = append(f.log, emission{kind: "room", roomID: roomID, ev: ev})
	f.mu.Unlock()
}

func (f *fakeBroadcaster) EmitToRoomExcept(roomID, connID string, ev Event) {
	f.mu.Lock()
	f.log = append(f.log, emission{kind: "except", roomID: roomID, connID: connID, ev: ev})
	f.mu.Unlock()
}

func (f *fakeBroadcaster) EmitToConn(connID string, ev Event) {
	f.mu.Lock()
	f.log = append(f.log, emission{kind: "conn", connID: connID, ev: ev})
	f.mu.Unlock()
}

// byName returns all emissions carrying an event with the given wire name
func (f *fakeBroadcaster) byName(name string) []emission {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emission
	for _, e := range f.log {
		if e.ev.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.log)
}

func (f *fakeBroadcaster) reset() {
	f.mu.Lock()
	f.log = nil
	f.mu.Unlock()
}

type fakeRunner struct{ res exec.Result }

func (f fakeRunner) Execute(context.Context, exec.Request) exec.Result { return f.res }

func newTestCoordinator(grace time.Duration, evict bool, res exec.Result) (*Coordinator, *fakeBroadcaster) {
	bc := &fakeBroadcaster{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := app.Config{GracePeriod: grace, EvictEmptyRooms: evict}
	return New(cfg, logger, bc, fakeRunner{res: res}), bc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestJoinCreatesRoomWithDefaultFile(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})

	co.Join("c1", "r1", "Alice")

	loads := bc.byName("loadFiles")
	if len(loads) != 1 {
		t.Fatalf("expected 1 loadFiles emission, got %d", len(loads))
	}
	if loads[0].kind != "conn" || loads[0].connID != "c1" {
		t.Errorf("loadFiles should go to the joiner only, got %+v", loads[0])
	}
	files := loads[0].ev.(LoadFiles)
	if len(files) != 1 || files[DefaultFileName] != DefaultFileContent {
		t.Errorf("unexpected initial file set: %v", files)
	}

	chats := bc.byName("loadChat")
	if len(chats) != 1 || chats[0].connID != "c1" {
		t.Fatalf("expected loadChat to the joiner, got %+v", chats)
	}
	if len(chats[0].ev.(LoadChat)) != 0 {
		t.Error("new room should have empty chat history")
	}

	lists := bc.byName("userListUpdate")
	if len(lists) != 1 || lists[0].kind != "room" || lists[0].roomID != "r1" {
		t.Fatalf("expected room-wide userListUpdate, got %+v", lists)
	}
	users := lists[0].ev.(UserListUpdate)
	if len(users) != 1 || users[0].Name != "Alice" || !users[0].Online {
		t.Errorf("unexpected user list: %v", users)
	}
}

func TestJoinInvalidInputIgnored(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})

	co.Join("c1", "", "Alice")
	co.Join("c1", "r1", "")
	co.Join("", "r1", "Alice")

	if bc.count() != 0 {
		t.Errorf("invalid joins must not broadcast, got %d emissions", bc.count())
	}
	if _, ok := co.SnapshotFiles("r1"); ok {
		t.Error("invalid join must not create the room")
	}
}

func TestJoinNotifiesOthersNotSelf(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})

	co.Join("c1", "r1", "Alice")
	bc.reset()
	co.Join("c2", "r1", "Bob")

	notes := bc.byName("userNotification")
	if len(notes) != 1 {
		t.Fatalf("expected 1 userNotification, got %d", len(notes))
	}
	if notes[0].kind != "except" || notes[0].connID != "c2" {
		t.Errorf("join notification must exclude the joiner, got %+v", notes[0])
	}
	note := notes[0].ev.(UserNotification)
	if note.Type != "join" {
		t.Errorf("expected join notification, got %q", note.Type)
	}
}

func TestChangeCodeLastWriterWins(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	bc.reset()

	co.ChangeCode("c1", "r1", DefaultFileName, "print(1)")
	co.ChangeCode("c2", "r1", DefaultFileName, "print(2)")

	files, _ := co.SnapshotFiles("r1")
	if files[DefaultFileName] != "print(2)" {
		t.Errorf("last writer must win, got %q", files[DefaultFileName])
	}

	ups := bc.byName("codeUpdate")
	if len(ups) != 2 {
		t.Fatalf("expected 2 codeUpdate emissions, got %d", len(ups))
	}
	for _, e := range ups {
		if e.kind != "except" {
			t.Errorf("codeUpdate must not echo to the sender, got %+v", e)
		}
	}
	if ups[0].connID != "c1" || ups[1].connID != "c2" {
		t.Error("codeUpdate should exclude the writing connection")
	}
}

// Broadcasts must land in mutation order: after concurrent writers finish,
// the last codeUpdate any client saw has to match the authoritative map.
func TestConcurrentWritesBroadcastInMutationOrder(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	bc.reset()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			co.ChangeCode("w", "r1", DefaultFileName, fmt.Sprintf("v%d", i))
		}(i)
	}
	wg.Wait()

	ups := bc.byName("codeUpdate")
	if len(ups) != 8 {
		t.Fatalf("expected 8 codeUpdate broadcasts, got %d", len(ups))
	}
	last := ups[len(ups)-1].ev.(CodeUpdate)
	files, _ := co.SnapshotFiles("r1")
	if last.Code != files[DefaultFileName] {
		t.Fatalf("clients converge to %q but authoritative map holds %q",
			last.Code, files[DefaultFileName])
	}
}

func TestChangeCodeIdempotent(t *testing.T) {
	co, _ := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")

	co.ChangeCode("c1", "r1", DefaultFileName, "print(1)")
	once, _ := co.SnapshotFiles("r1")
	co.ChangeCode("c1", "r1", DefaultFileName, "print(1)")
	twice, _ := co.SnapshotFiles("r1")

	if once[DefaultFileName] != twice[DefaultFileName] {
		t.Error("repeating an identical write must not change the final state")
	}
}

func TestChangeCodeMissingRoomOrFile(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})

	co.ChangeCode("c1", "nope", "main.js", "x")
	if bc.count() != 0 {
		t.Error("unknown room must be a silent no-op")
	}

	co.Join("c1", "r1", "Alice")
	bc.reset()
	co.ChangeCode("c1", "r1", "missing.js", "x")
	if len(bc.byName("codeUpdate")) != 0 {
		t.Error("unknown file must be a silent no-op")
	}
}

func TestChangeLanguageReachesEveryone(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	bc.reset()

	co.ChangeLanguage("r1", "python")

	emits := bc.byName("languageChange")
	if len(emits) != 1 || emits[0].kind != "room" {
		t.Fatalf("languageChange must go room-wide including the sender, got %+v", emits)
	}
	if emits[0].ev.(LanguageChange).Language != "python" {
		t.Error("wrong language broadcast")
	}
}

func TestCreateFileBroadcastsFullMap(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	bc.reset()

	co.CreateFile("r1", "util.js")

	loads := bc.byName("loadFiles")
	if len(loads) != 1 || loads[0].kind != "room" {
		t.Fatalf("expected room-wide loadFiles, got %+v", loads)
	}
	files := loads[0].ev.(LoadFiles)
	if content, ok := files["util.js"]; !ok || content != "" {
		t.Errorf("new file should exist with empty content, got %v", files)
	}
	snap, _ := co.SnapshotFiles("r1")
	if len(snap) != len(files) {
		t.Error("broadcast map must match the authoritative map")
	}
}

func TestCreateFileIdempotent(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	co.ChangeCode("c1", "r1", DefaultFileName, "print(1)")
	bc.reset()

	co.CreateFile("r1", DefaultFileName)

	if bc.count() != 0 {
		t.Error("creating an existing file must be a no-op")
	}
	files, _ := co.SnapshotFiles("r1")
	if files[DefaultFileName] != "print(1)" {
		t.Error("existing content must survive a duplicate create")
	}
}

func TestDeleteFileBroadcastsFullMap(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	co.CreateFile("r1", "util.js")
	bc.reset()

	co.DeleteFile("r1", "util.js")

	loads := bc.byName("loadFiles")
	if len(loads) != 1 {
		t.Fatalf("expected 1 loadFiles broadcast, got %d", len(loads))
	}
	files := loads[0].ev.(LoadFiles)
	if _, ok := files["util.js"]; ok {
		t.Error("deleted file still present in broadcast map")
	}
	snap, _ := co.SnapshotFiles("r1")
	if _, ok := snap["util.js"]; ok {
		t.Error("deleted file still present in authoritative map")
	}
}

// Deleting the last file is allowed and leaves the map empty, matching the
// source behavior.
func TestDeleteLastFileLeavesEmptyMap(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	bc.reset()

	co.DeleteFile("r1", DefaultFileName)

	loads := bc.byName("loadFiles")
	if len(loads) != 1 {
		t.Fatalf("expected a loadFiles broadcast, got %d", len(loads))
	}
	if len(loads[0].ev.(LoadFiles)) != 0 {
		t.Error("map should be empty after deleting the last file")
	}
	snap, ok := co.SnapshotFiles("r1")
	if !ok || len(snap) != 0 {
		t.Errorf("room should survive with zero files, got %v ok=%v", snap, ok)
	}
}

func TestSendMessageAppendsInOrder(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	bc.reset()

	co.SendMessage("r1", "Alice", "hello")
	co.SendMessage("r1", "Alice", "world")

	msgs := bc.byName("receiveMessage")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 receiveMessage broadcasts, got %d", len(msgs))
	}
	for _, e := range msgs {
		if e.kind != "room" {
			t.Error("chat must reach the whole room including the sender")
		}
	}
	first := msgs[0].ev.(ReceiveMessage)
	if first.Sender != "Alice" || first.Text != "hello" || first.Time == "" {
		t.Errorf("unexpected first message: %+v", first)
	}

	// A later joiner sees the history in append order
	bc.reset()
	co.Join("c2", "r1", "Bob")
	chats := bc.byName("loadChat")
	history := chats[0].ev.(LoadChat)
	if len(history) != 2 || history[0].Text != "hello" || history[1].Text != "world" {
		t.Errorf("history out of order: %+v", history)
	}
}

func TestLeaveRemovesImmediately(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	co.Join("c2", "r1", "Bob")
	bc.reset()

	co.Leave("c1", "r1")

	lists := bc.byName("userListUpdate")
	if len(lists) != 1 {
		t.Fatalf("expected 1 userListUpdate, got %d", len(lists))
	}
	users := lists[0].ev.(UserListUpdate)
	if len(users) != 1 || users[0].Name != "Bob" {
		t.Errorf("user must be gone immediately after leave, got %v", users)
	}

	notes := bc.byName("userNotification")
	if len(notes) != 1 || notes[0].ev.(UserNotification).Type != "leave" {
		t.Errorf("expected a leave notification, got %+v", notes)
	}
}

func TestDisconnectMarksOfflineThenRemoves(t *testing.T) {
	co, bc := newTestCoordinator(30*time.Millisecond, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	bc.reset()

	co.Disconnect("c1")

	// Before grace expiry: present but offline
	lists := bc.byName("userListUpdate")
	if len(lists) != 1 {
		t.Fatalf("expected immediate userListUpdate, got %d", len(lists))
	}
	users := lists[0].ev.(UserListUpdate)
	if len(users) != 1 || users[0].Online {
		t.Errorf("entry must remain with online=false, got %v", users)
	}

	// After grace expiry: removed
	waitFor(t, func() bool { return len(bc.byName("userListUpdate")) == 2 })
	lists = bc.byName("userListUpdate")
	if len(lists[1].ev.(UserListUpdate)) != 0 {
		t.Errorf("entry must be removed after the grace period, got %v", lists[1].ev)
	}
}

func TestReconnectBeforeGraceExpiry(t *testing.T) {
	co, bc := newTestCoordinator(40*time.Millisecond, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	co.Disconnect("c1")

	// Same connection identity comes back inside the window
	co.Join("c1", "r1", "Alice")
	bc.reset()

	// The superseded cleanup must not fire and remove the live entry
	time.Sleep(120 * time.Millisecond)
	if n := len(bc.byName("userListUpdate")); n != 0 {
		t.Fatalf("stale cleanup removed a reconnected user (%d updates)", n)
	}

	co.mu.RLock()
	rm := co.rooms["r1"]
	co.mu.RUnlock()
	rm.mu.Lock()
	entry, ok := rm.users["c1"]
	rm.mu.Unlock()
	if !ok || !entry.Online {
		t.Errorf("reconnected entry must be present and online, got %+v ok=%v", entry, ok)
	}
}

func TestDisconnectUnknownConnection(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Disconnect("ghost")
	if bc.count() != 0 {
		t.Error("disconnect of an unknown connection must be a no-op")
	}
}

func TestRunCodeFailureBroadcastsPlaceholder(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{
		Success: false,
		Output:  exec.FailureOutput,
	})
	co.Join("c1", "r1", "Alice")
	bc.reset()

	co.RunCode("r1", exec.Request{Language: "python", Version: "3", Code: "1/0"})

	waitFor(t, func() bool { return len(bc.byName("codeResponse")) == 1 })
	e := bc.byName("codeResponse")[0]
	if e.kind != "room" {
		t.Error("codeResponse must reach every room-wide listener")
	}
	res := e.ev.(CodeResponse)
	if res.Success || res.Output != exec.FailureOutput {
		t.Errorf("expected the fixed error output, got %+v", res)
	}
}

func TestRunCodeSuccessRecordsOutput(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{Success: true, Output: "42\n"})
	co.Join("c1", "r1", "Alice")
	bc.reset()

	co.RunCode("r1", exec.Request{Language: "python", Version: "3", Code: "print(42)"})

	waitFor(t, func() bool { return len(bc.byName("codeResponse")) == 1 })

	co.mu.RLock()
	rm := co.rooms["r1"]
	co.mu.RUnlock()
	rm.mu.Lock()
	out := rm.lastOutput
	rm.mu.Unlock()
	if out != "42\n" {
		t.Errorf("last output not recorded, got %q", out)
	}
}

func TestTypingRelayedToOthers(t *testing.T) {
	co, bc := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	bc.reset()

	co.NotifyTyping("c1", "r1", "Alice")

	emits := bc.byName("typing")
	if len(emits) != 1 || emits[0].kind != "except" || emits[0].connID != "c1" {
		t.Fatalf("typing must go to everyone but the sender, got %+v", emits)
	}
}

func TestEmptyRoomEviction(t *testing.T) {
	co, _ := newTestCoordinator(time.Second, true, exec.Result{})
	co.Join("c1", "r1", "Alice")
	co.Leave("c1", "r1")

	if _, ok := co.SnapshotFiles("r1"); ok {
		t.Error("empty room should be evicted when the policy is enabled")
	}
}

// A join racing an eviction must never land its user in a detached room:
// either the leave wins and the join rebuilds the room, or the join wins and
// the eviction sees a non-empty room and backs off.
func TestJoinRacingEvictionStaysAttached(t *testing.T) {
	co, _ := newTestCoordinator(time.Second, true, exec.Result{})

	for i := 0; i < 200; i++ {
		co.Join("c1", "r1", "Alice")

		done := make(chan struct{})
		go func() {
			co.Leave("c1", "r1")
			close(done)
		}()
		co.Join("c2", "r1", "Bob")
		<-done

		co.mu.RLock()
		rm := co.rooms["r1"]
		co.mu.RUnlock()
		if rm == nil {
			t.Fatal("room with a live member was evicted")
		}
		rm.mu.Lock()
		_, ok := rm.users["c2"]
		rm.mu.Unlock()
		if !ok {
			t.Fatal("joiner was inserted into a detached room")
		}

		co.Leave("c2", "r1")
	}
}

func TestRoomSurvivesWithoutEviction(t *testing.T) {
	co, _ := newTestCoordinator(time.Second, false, exec.Result{})
	co.Join("c1", "r1", "Alice")
	co.ChangeCode("c1", "r1", DefaultFileName, "print(1)")
	co.Leave("c1", "r1")

	files, ok := co.SnapshotFiles("r1")
	if !ok || files[DefaultFileName] != "print(1)" {
		t.Error("room state must persist after the last user leaves by default")
	}
}
