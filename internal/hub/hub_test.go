package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderhq/parley/internal/config"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
}

func newTestHub(t *testing.T, sweep time.Duration) *Hub {
	t.Helper()
	h := NewHub(testWSConfig(), sweep)
	go h.Run()
	t.Cleanup(h.Close)
	return h
}

// testClient builds a client without a transport; payloads are read
// straight from the Send channel.
func testClient(h *Hub, id string) *Client {
	return NewClient(id, h, nil, nil, testWSConfig())
}

func recvPayload(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-c.Send:
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func assertNoPayload(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected payload: %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestJoinRoomReturnsMemberCount(t *testing.T) {
	h := newTestHub(t, time.Hour)

	a := testClient(h, "a")
	b := testClient(h, "b")

	assert.Equal(t, 1, h.JoinRoom(a, "lobby"))
	assert.Equal(t, 2, h.JoinRoom(b, "lobby"))

	// Re-joining is a no-op.
	assert.Equal(t, 2, h.JoinRoom(a, "lobby"))
	assert.Equal(t, 2, h.MemberCount("lobby"))
}

func TestMembersSnapshot(t *testing.T) {
	h := newTestHub(t, time.Hour)

	a := testClient(h, "a")
	b := testClient(h, "b")
	h.JoinRoom(a, "lobby")
	h.JoinRoom(b, "lobby")
	h.JoinRoom(testClient(h, "c"), "other")

	members := h.Members("lobby")
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
	assert.Empty(t, h.Members("ghost"))
}

func TestBroadcastToRoomExcludesSender(t *testing.T) {
	h := newTestHub(t, time.Hour)

	a := testClient(h, "a")
	b := testClient(h, "b")
	outsider := testClient(h, "c")
	h.JoinRoom(a, "lobby")
	h.JoinRoom(b, "lobby")
	h.JoinRoom(outsider, "other")

	require.NoError(t, h.BroadcastToRoom("lobby", map[string]string{"type": "hello"}, "a"))

	got := recvPayload(t, b)
	assert.Equal(t, "hello", got["type"])

	assertNoPayload(t, a)
	assertNoPayload(t, outsider)
}

func TestBroadcastToRoomIncludesAllWithoutExclude(t *testing.T) {
	h := newTestHub(t, time.Hour)

	a := testClient(h, "a")
	b := testClient(h, "b")
	h.JoinRoom(a, "lobby")
	h.JoinRoom(b, "lobby")

	require.NoError(t, h.BroadcastToRoom("lobby", map[string]string{"type": "hello"}, ""))

	assert.Equal(t, "hello", recvPayload(t, a)["type"])
	assert.Equal(t, "hello", recvPayload(t, b)["type"])
}

func TestBroadcastToUnknownRoomIsDropped(t *testing.T) {
	h := newTestHub(t, time.Hour)
	require.NoError(t, h.BroadcastToRoom("ghost", map[string]string{"type": "hello"}, ""))
	// Nothing to assert beyond "does not block or panic".
}

func TestBroadcastPreservesEnqueueOrder(t *testing.T) {
	h := newTestHub(t, time.Hour)

	a := testClient(h, "a")
	h.JoinRoom(a, "lobby")

	for i := 0; i < 10; i++ {
		require.NoError(t, h.BroadcastToRoom("lobby", map[string]int{"seq": i}, ""))
	}

	for i := 0; i < 10; i++ {
		got := recvPayload(t, a)
		assert.Equal(t, float64(i), got["seq"])
	}
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
	h := newTestHub(t, time.Hour)

	a := testClient(h, "a")
	b := testClient(h, "b")
	h.Register(a)
	h.Register(b)
	h.JoinRoom(a, "lobby")
	h.JoinRoom(b, "lobby")

	h.Unregister(a)

	require.Eventually(t, func() bool {
		return h.MemberCount("lobby") == 1
	}, time.Second, 10*time.Millisecond)

	// Fan-out after removal reaches the remaining member only.
	require.NoError(t, h.BroadcastToRoom("lobby", map[string]string{"type": "hello"}, ""))
	assert.Equal(t, "hello", recvPayload(t, b)["type"])
}

func TestLeaveRoomKeepsEntryUntilSweep(t *testing.T) {
	h := newTestHub(t, 50*time.Millisecond)

	a := testClient(h, "a")
	h.JoinRoom(a, "lobby")
	h.LeaveRoom(a, "lobby")

	// Entry lingers until the sweep evicts it.
	h.mu.RLock()
	_, present := h.rooms["lobby"]
	h.mu.RUnlock()
	assert.True(t, present)

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		_, still := h.rooms["lobby"]
		return !still
	}, time.Second, 20*time.Millisecond)

	// A join after eviction recreates the room.
	assert.Equal(t, 1, h.JoinRoom(a, "lobby"))
}
