package ws

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pairpad/pairpad/internal/persist"
	"github.com/pairpad/pairpad/internal/registry"
	"github.com/pairpad/pairpad/internal/store"
)

// stubStore backs the registry and the persistence writer in tests.
type stubStore struct {
	mu    sync.Mutex
	rooms map[string]store.Room
	saves []string
}

func (s *stubStore) Load(id string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &room, nil
}

func (s *stubStore) Save(id, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, id+":"+code)
	return nil
}

func (s *stubStore) AppendSnapshot(roomID, code string, ts time.Time) error {
	return nil
}

func (s *stubStore) savedCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.saves))
	copy(out, s.saves)
	return out
}

func setupTestHub(t *testing.T, grace time.Duration) (*Hub, *registry.Registry, *stubStore) {
	t.Helper()

	st := &stubStore{
		rooms: map[string]store.Room{
			"r1": {ID: "r1", Code: "# Write your Python code here\n\n", Language: "python"},
			"r2": {ID: "r2", Code: "// Write your Go code here\n", Language: "go"},
		},
	}

	reg := registry.New(st, grace)
	writer := persist.New(st, 64)
	writer.Start()
	t.Cleanup(writer.Stop)

	hub := NewHub(reg, writer)
	reg.SetConnCounter(hub)
	go hub.Run()

	return hub, reg, st
}

func newTestClient(id, roomID string) *Client {
	return &Client{
		roomID:   roomID,
		send:     make(chan []byte, 16),
		clientID: id,
	}
}

// receive decodes the next message sent to a client, failing on timeout.
func receive(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed while expecting a message")
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to decode message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for message")
		return nil
	}
}

// expectSilence asserts no message arrives within the window.
func expectSilence(t *testing.T, c *Client, d time.Duration) {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if ok {
			t.Fatalf("Expected no message, got %s", data)
		}
	case <-time.After(d):
	}
}

func join(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
}

func TestJoinReceivesSnapshotThenCount(t *testing.T) {
	hub, _, _ := setupTestHub(t, time.Minute)

	c1 := newTestClient("c1", "r1")
	join(t, hub, c1)

	snapshot := receive(t, c1)
	if snapshot["type"] != TypeCodeUpdate {
		t.Errorf("Expected snapshot type %q, got %v", TypeCodeUpdate, snapshot["type"])
	}
	if snapshot["code"] != "# Write your Python code here\n\n" {
		t.Errorf("Snapshot should carry current code, got %v", snapshot["code"])
	}
	if snapshot["language"] != "python" {
		t.Errorf("Snapshot should carry language, got %v", snapshot["language"])
	}

	count := receive(t, c1)
	if count["type"] != TypeUserCount {
		t.Errorf("Expected user_count, got %v", count["type"])
	}
	if count["count"] != float64(1) {
		t.Errorf("Expected count 1, got %v", count["count"])
	}
}

func TestJoinBroadcastsCountToEveryone(t *testing.T) {
	hub, _, _ := setupTestHub(t, time.Minute)

	c1 := newTestClient("c1", "r1")
	c2 := newTestClient("c2", "r1")

	join(t, hub, c1)
	receive(t, c1) // snapshot
	receive(t, c1) // count 1

	join(t, hub, c2)
	receive(t, c2) // snapshot

	count2 := receive(t, c2)
	if count2["count"] != float64(2) {
		t.Errorf("Joiner should see count 2, got %v", count2["count"])
	}

	count1 := receive(t, c1)
	if count1["type"] != TypeUserCount || count1["count"] != float64(2) {
		t.Errorf("Existing client should see count 2, got %v", count1)
	}
}

func TestJoinSnapshotReflectsLatestEdit(t *testing.T) {
	hub, _, _ := setupTestHub(t, time.Minute)

	c1 := newTestClient("c1", "r1")
	join(t, hub, c1)
	receive(t, c1)
	receive(t, c1)

	hub.broadcast <- &editEvent{RoomID: "r1", Code: "x = 1", Sender: c1}

	c2 := newTestClient("c2", "r1")
	join(t, hub, c2)

	snapshot := receive(t, c2)
	if snapshot["code"] != "x = 1" {
		t.Errorf("Late joiner should see the accepted edit, got %v", snapshot["code"])
	}
}

func TestEditBroadcastExcludesSender(t *testing.T) {
	hub, reg, st := setupTestHub(t, time.Minute)

	c1 := newTestClient("c1", "r1")
	c2 := newTestClient("c2", "r1")
	join(t, hub, c1)
	receive(t, c1)
	receive(t, c1)
	join(t, hub, c2)
	receive(t, c2)
	receive(t, c2)
	receive(t, c1) // count 2

	hub.broadcast <- &editEvent{RoomID: "r1", Code: "x = 1", Sender: c1}

	update := receive(t, c2)
	if update["type"] != TypeCodeUpdate || update["code"] != "x = 1" {
		t.Errorf("Other client should receive the edit, got %v", update)
	}

	expectSilence(t, c1, 50*time.Millisecond)

	room, err := reg.Get("r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if room.Code != "x = 1" {
		t.Errorf("Registry should hold the new code, got %q", room.Code)
	}

	// The edit reaches the store asynchronously.
	deadline := time.Now().Add(time.Second)
	for len(st.savedCodes()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	saves := st.savedCodes()
	if len(saves) == 0 || saves[len(saves)-1] != "r1:x = 1" {
		t.Errorf("Edit should be persisted, got %v", saves)
	}
}

func TestEditsDeliveredInArrivalOrder(t *testing.T) {
	hub, reg, _ := setupTestHub(t, time.Minute)

	c1 := newTestClient("c1", "r1")
	c2 := newTestClient("c2", "r1")
	join(t, hub, c1)
	receive(t, c1)
	receive(t, c1)
	join(t, hub, c2)
	receive(t, c2)
	receive(t, c2)
	receive(t, c1)

	hub.broadcast <- &editEvent{RoomID: "r1", Code: "e1", Sender: c1}
	hub.broadcast <- &editEvent{RoomID: "r1", Code: "e2", Sender: c1}

	first := receive(t, c2)
	second := receive(t, c2)
	if first["code"] != "e1" || second["code"] != "e2" {
		t.Errorf("Edits out of order: %v then %v", first["code"], second["code"])
	}

	room, _ := reg.Get("r1")
	if room.Code != "e2" {
		t.Errorf("Last write should win, got %q", room.Code)
	}
}

func TestRoomIsolation(t *testing.T) {
	hub, _, _ := setupTestHub(t, time.Minute)

	c1 := newTestClient("c1", "r1")
	cb := newTestClient("cb", "r2")
	join(t, hub, c1)
	receive(t, c1)
	receive(t, c1)
	join(t, hub, cb)
	receive(t, cb)
	receive(t, cb)

	hub.broadcast <- &editEvent{RoomID: "r1", Code: "x = 1", Sender: nil}

	// c1 gets the edit (sender nil excludes nobody), cb gets nothing.
	update := receive(t, c1)
	if update["code"] != "x = 1" {
		t.Errorf("Room r1 client should receive the edit, got %v", update)
	}
	expectSilence(t, cb, 50*time.Millisecond)
}

func TestLeaveBroadcastsUpdatedCount(t *testing.T) {
	hub, _, _ := setupTestHub(t, time.Minute)

	c1 := newTestClient("c1", "r1")
	c2 := newTestClient("c2", "r1")
	join(t, hub, c1)
	receive(t, c1)
	receive(t, c1)
	join(t, hub, c2)
	receive(t, c2)
	receive(t, c2)
	receive(t, c1)

	hub.unregister <- c1

	count := receive(t, c2)
	if count["type"] != TypeUserCount || count["count"] != float64(1) {
		t.Errorf("Remaining client should see count 1, got %v", count)
	}
	if hub.ConnCount("r1") != 1 {
		t.Errorf("Expected 1 connection, got %d", hub.ConnCount("r1"))
	}
}

func TestLastLeaveSchedulesEviction(t *testing.T) {
	hub, reg, _ := setupTestHub(t, 10*time.Millisecond)

	c1 := newTestClient("c1", "r1")
	join(t, hub, c1)
	receive(t, c1)
	receive(t, c1)

	hub.unregister <- c1

	deadline := time.Now().Add(time.Second)
	for reg.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if reg.Len() != 0 {
		t.Error("Registry entry should be evicted after the grace period")
	}
	if hub.GetRoomCount() != 0 {
		t.Error("Empty room should be removed from the hub")
	}
}

func TestDeadClientFlaggedAndRemoved(t *testing.T) {
	hub, _, _ := setupTestHub(t, time.Minute)

	c1 := newTestClient("c1", "r1")
	join(t, hub, c1)
	receive(t, c1)
	receive(t, c1)

	// A client whose buffer is already full cannot accept deliveries.
	dead := &Client{roomID: "r1", send: make(chan []byte), clientID: "dead"}
	hub.mu.Lock()
	hub.rooms["r1"][dead] = true
	hub.mu.Unlock()

	hub.broadcast <- &editEvent{RoomID: "r1", Code: "x = 1", Sender: nil}

	// c1 still gets the edit despite the dead peer.
	update := receive(t, c1)
	if update["code"] != "x = 1" {
		t.Errorf("Live client should receive the edit, got %v", update)
	}

	// And a count update once the dead client is removed.
	count := receive(t, c1)
	if count["type"] != TypeUserCount || count["count"] != float64(1) {
		t.Errorf("Expected count 1 after dead client removal, got %v", count)
	}
	if hub.ConnCount("r1") != 1 {
		t.Errorf("Dead client should be removed, have %d connections", hub.ConnCount("r1"))
	}
}

func TestCloseRoomClosesAllConnections(t *testing.T) {
	hub, _, _ := setupTestHub(t, time.Minute)

	c1 := newTestClient("c1", "r1")
	c2 := newTestClient("c2", "r1")
	join(t, hub, c1)
	receive(t, c1)
	receive(t, c1)
	join(t, hub, c2)
	receive(t, c2)
	receive(t, c2)
	receive(t, c1)

	hub.CloseRoom("r1")

	for _, c := range []*Client{c1, c2} {
		select {
		case _, ok := <-c.send:
			if ok {
				t.Error("Expected closed send channel")
			}
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for channel close")
		}
	}
	if hub.GetRoomCount() != 0 {
		t.Error("Closed room should be gone")
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	hub, _, _ := setupTestHub(t, time.Minute)

	c1 := newTestClient("c1", "r1")
	cb := newTestClient("cb", "r2")
	join(t, hub, c1)
	receive(t, c1)
	receive(t, c1)
	join(t, hub, cb)
	receive(t, cb)
	receive(t, cb)

	hub.Shutdown(time.Second)

	if hub.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients after shutdown, got %d", hub.GetClientCount())
	}
}

func TestHubCounters(t *testing.T) {
	hub, _, _ := setupTestHub(t, time.Minute)

	if hub.GetRoomCount() != 0 || hub.GetClientCount() != 0 {
		t.Error("Fresh hub should have no rooms or clients")
	}

	c1 := newTestClient("c1", "r1")
	cb := newTestClient("cb", "r2")
	join(t, hub, c1)
	receive(t, c1)
	receive(t, c1)
	join(t, hub, cb)
	receive(t, cb)
	receive(t, cb)

	if hub.GetRoomCount() != 2 {
		t.Errorf("Expected 2 rooms, got %d", hub.GetRoomCount())
	}
	if hub.GetClientCount() != 2 {
		t.Errorf("Expected 2 clients, got %d", hub.GetClientCount())
	}

	active := hub.GetActiveRooms()
	if active["r1"] != 1 || active["r2"] != 1 {
		t.Errorf("Unexpected active rooms: %v", active)
	}
}
