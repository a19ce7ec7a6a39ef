package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderhq/parley/internal/config"
	"github.com/calderhq/parley/internal/domain"
	"github.com/calderhq/parley/internal/hub"
	"github.com/calderhq/parley/internal/presence"
	"github.com/calderhq/parley/internal/repository"
)

type fixture struct {
	hub     *hub.Hub
	tracker *presence.Tracker
	repo    repository.MessageRepository
	svc     ChatService
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
}

func newFixture(t *testing.T, repo repository.MessageRepository) *fixture {
	t.Helper()

	h := hub.NewHub(testWSConfig(), time.Hour)
	go h.Run()
	t.Cleanup(h.Close)

	tracker := presence.NewTracker(time.Minute, time.Minute)
	history := NewHistoryService(repo, nil, 0)
	svc := NewChatService(h, tracker, history, repo, 50)

	return &fixture{hub: h, tracker: tracker, repo: repo, svc: svc}
}

func (f *fixture) client(id string) *hub.Client {
	return hub.NewClient(id, f.hub, nil, nil, testWSConfig())
}

func nextEvent(t *testing.T, c *hub.Client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-c.Send:
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func expectEvent(t *testing.T, c *hub.Client, eventType string) map[string]interface{} {
	t.Helper()
	ev := nextEvent(t, c)
	require.Equal(t, eventType, ev["type"], "unexpected event: %v", ev)
	return ev
}

func assertNoEvent(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected event: %s", raw)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestJoin_EmptyRoomRejected(t *testing.T) {
	f := newFixture(t, setupTestRepo(t))
	c := f.client("c1")

	require.NoError(t, f.svc.HandleJoin(context.Background(), c, "  ", "Ana"))

	ev := expectEvent(t, c, domain.EventError)
	assert.Equal(t, domain.ErrCodeValidation, ev["code"])
	assert.False(t, c.Session.IsInRoom())
}

func TestJoin_FreshRoomScenario(t *testing.T) {
	f := newFixture(t, setupTestRepo(t))
	ctx := context.Background()

	ana := f.client("a")
	bo := f.client("b")

	require.NoError(t, f.svc.HandleJoin(ctx, ana, "lobby", "Ana"))
	history := expectEvent(t, ana, domain.EventRoomHistory)
	assert.Empty(t, history["messages"])
	expectEvent(t, ana, domain.EventRoomStats)

	require.NoError(t, f.svc.HandleJoin(ctx, bo, "lobby", "Bo"))
	history = expectEvent(t, bo, domain.EventRoomHistory)
	assert.Empty(t, history["messages"])
	expectEvent(t, bo, domain.EventRoomStats)

	// Ana, already in the room, is told about Bo. Bo gets nothing.
	joined := expectEvent(t, ana, domain.EventUserJoined)
	assert.Equal(t, "Bo", joined["username"])
	assert.NotEmpty(t, joined["timestamp"])
	assertNoEvent(t, bo)
}

func TestSend_BroadcastToAllIncludingSender(t *testing.T) {
	f := newFixture(t, setupTestRepo(t))
	ctx := context.Background()

	ana := f.client("a")
	bo := f.client("b")
	require.NoError(t, f.svc.HandleJoin(ctx, ana, "lobby", "Ana"))
	drainJoin(t, ana)
	require.NoError(t, f.svc.HandleJoin(ctx, bo, "lobby", "Bo"))
	drainJoin(t, bo)
	expectEvent(t, ana, domain.EventUserJoined)

	require.NoError(t, f.svc.HandleSend(ctx, ana, "Ana", "hi", ""))

	for _, c := range []*hub.Client{ana, bo} {
		ev := expectEvent(t, c, domain.EventReceiveMessage)
		assert.Equal(t, "Ana", ev["author"])
		assert.Equal(t, "hi", ev["message"])
		assert.Equal(t, "lobby", ev["room"])
		assert.Equal(t, "a", ev["socketId"])
		assert.NotEmpty(t, ev["id"])
		assert.NotEmpty(t, ev["createdAt"])
	}

	// The message is durable: a later joiner sees it in history.
	cy := f.client("c")
	require.NoError(t, f.svc.HandleJoin(ctx, cy, "lobby", "Cy"))
	history := expectEvent(t, cy, domain.EventRoomHistory)
	messages := history["messages"].([]interface{})
	require.Len(t, messages, 1)
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "hi", first["message"])

	stats := expectEvent(t, cy, domain.EventRoomStats)
	assert.Equal(t, float64(1), stats["messageCount"])
	assert.Equal(t, float64(1), stats["participantCount"])
}

func TestSend_RequiresRoomAndBody(t *testing.T) {
	f := newFixture(t, setupTestRepo(t))
	ctx := context.Background()

	c := f.client("c1")
	require.NoError(t, f.svc.HandleSend(ctx, c, "Ana", "hi", ""))
	ev := expectEvent(t, c, domain.EventError)
	assert.Equal(t, domain.ErrCodeNotInRoom, ev["code"])

	require.NoError(t, f.svc.HandleJoin(ctx, c, "lobby", "Ana"))
	drainJoin(t, c)

	require.NoError(t, f.svc.HandleSend(ctx, c, "Ana", "   ", ""))
	ev = expectEvent(t, c, domain.EventError)
	assert.Equal(t, domain.ErrCodeValidation, ev["code"])
}

func TestSend_PersistenceFailureNotBroadcast(t *testing.T) {
	good := setupTestRepo(t)
	f := newFixture(t, good)
	ctx := context.Background()

	ana := f.client("a")
	bo := f.client("b")
	require.NoError(t, f.svc.HandleJoin(ctx, ana, "lobby", "Ana"))
	drainJoin(t, ana)
	require.NoError(t, f.svc.HandleJoin(ctx, bo, "lobby", "Bo"))
	drainJoin(t, bo)
	expectEvent(t, ana, domain.EventUserJoined)

	// Swap in a failing store for the send path.
	failing := newFixtureWithHub(t, f, failingRepo{})

	require.NoError(t, failing.HandleSend(ctx, ana, "Ana", "hi", ""))
	ev := expectEvent(t, ana, domain.EventError)
	assert.Equal(t, domain.ErrCodePersistence, ev["code"])
	assertNoEvent(t, bo)
}

// newFixtureWithHub builds a second service over the same hub and
// tracker so membership carries over.
func newFixtureWithHub(t *testing.T, f *fixture, repo repository.MessageRepository) ChatService {
	t.Helper()
	return NewChatService(f.hub, f.tracker, NewHistoryService(repo, nil, 0), repo, 50)
}

func TestJoin_DegradedOnStoreFailure(t *testing.T) {
	f := newFixture(t, failingRepo{})
	ctx := context.Background()

	c := f.client("c1")
	require.NoError(t, f.svc.HandleJoin(ctx, c, "lobby", "Ana"))

	history := expectEvent(t, c, domain.EventRoomHistory)
	assert.Empty(t, history["messages"])

	stats := expectEvent(t, c, domain.EventRoomStats)
	assert.Equal(t, float64(0), stats["messageCount"])

	assert.True(t, c.Session.IsInRoom())
	assert.Equal(t, 1, f.hub.MemberCount("lobby"))
}

func TestJoin_SwitchingRoomsLeavesFirst(t *testing.T) {
	f := newFixture(t, setupTestRepo(t))
	ctx := context.Background()

	ana := f.client("a")
	obsA := f.client("oa")
	obsB := f.client("ob")

	require.NoError(t, f.svc.HandleJoin(ctx, obsA, "alpha", "ObsA"))
	drainJoin(t, obsA)
	require.NoError(t, f.svc.HandleJoin(ctx, obsB, "beta", "ObsB"))
	drainJoin(t, obsB)

	require.NoError(t, f.svc.HandleJoin(ctx, ana, "alpha", "Ana"))
	drainJoin(t, ana)
	expectEvent(t, obsA, domain.EventUserJoined)

	require.NoError(t, f.svc.HandleJoin(ctx, ana, "beta", "Ana"))
	drainJoin(t, ana)

	left := expectEvent(t, obsA, domain.EventUserLeft)
	assert.Equal(t, "Ana", left["username"])

	joined := expectEvent(t, obsB, domain.EventUserJoined)
	assert.Equal(t, "Ana", joined["username"])

	assert.Equal(t, "beta", ana.Session.Room())
	assert.Equal(t, 1, f.hub.MemberCount("alpha"))
	assert.Equal(t, 2, f.hub.MemberCount("beta"))
}

func TestTyping_NotEchoedToTyper(t *testing.T) {
	f := newFixture(t, setupTestRepo(t))
	ctx := context.Background()

	ana := f.client("a")
	bo := f.client("b")
	require.NoError(t, f.svc.HandleJoin(ctx, ana, "lobby", "Ana"))
	drainJoin(t, ana)
	require.NoError(t, f.svc.HandleJoin(ctx, bo, "lobby", "Bo"))
	drainJoin(t, bo)
	expectEvent(t, ana, domain.EventUserJoined)

	require.NoError(t, f.svc.HandleTyping(ctx, bo, "Bo"))

	ev := expectEvent(t, ana, domain.EventUserTyping)
	assert.Equal(t, "Bo", ev["username"])
	assertNoEvent(t, bo)

	assert.Equal(t, []string{"Bo"}, f.tracker.Typing("lobby"))

	require.NoError(t, f.svc.HandleStopTyping(ctx, bo, "Bo"))
	ev = expectEvent(t, ana, domain.EventUserStopTyping)
	assert.Equal(t, "Bo", ev["username"])
	assert.Empty(t, f.tracker.Typing("lobby"))
}

func TestTyping_NoRoomIsNoop(t *testing.T) {
	f := newFixture(t, setupTestRepo(t))
	c := f.client("c1")

	require.NoError(t, f.svc.HandleTyping(context.Background(), c, "Ana"))
	assertNoEvent(t, c)
}

func TestLeave_NotifiesRemainingMembers(t *testing.T) {
	f := newFixture(t, setupTestRepo(t))
	ctx := context.Background()

	ana := f.client("a")
	bo := f.client("b")
	require.NoError(t, f.svc.HandleJoin(ctx, ana, "lobby", "Ana"))
	drainJoin(t, ana)
	require.NoError(t, f.svc.HandleJoin(ctx, bo, "lobby", "Bo"))
	drainJoin(t, bo)
	expectEvent(t, ana, domain.EventUserJoined)

	require.NoError(t, f.svc.HandleLeave(ctx, bo))

	left := expectEvent(t, ana, domain.EventUserLeft)
	assert.Equal(t, "Bo", left["username"])
	assert.False(t, bo.Session.IsInRoom())
	assert.Equal(t, 1, f.hub.MemberCount("lobby"))

	// Leaving again is a silent no-op.
	require.NoError(t, f.svc.HandleLeave(ctx, bo))
	assertNoEvent(t, ana)
}

func TestDisconnect_ExactlyOneUserLeft(t *testing.T) {
	f := newFixture(t, setupTestRepo(t))
	ctx := context.Background()

	ana := f.client("a")
	bo := f.client("b")
	require.NoError(t, f.svc.HandleJoin(ctx, ana, "lobby", "Ana"))
	drainJoin(t, ana)
	require.NoError(t, f.svc.HandleJoin(ctx, bo, "lobby", "Bo"))
	drainJoin(t, bo)
	expectEvent(t, ana, domain.EventUserJoined)

	require.NoError(t, f.svc.HandleDisconnect(ctx, bo))
	require.NoError(t, f.svc.HandleDisconnect(ctx, bo))

	left := expectEvent(t, ana, domain.EventUserLeft)
	assert.Equal(t, "Bo", left["username"])
	assertNoEvent(t, ana)
}

func TestTypingExpiry_BroadcastsStopTyping(t *testing.T) {
	repo := setupTestRepo(t)

	h := hub.NewHub(testWSConfig(), time.Hour)
	go h.Run()
	t.Cleanup(h.Close)

	tracker := presence.NewTracker(100*time.Millisecond, 20*time.Millisecond)
	svc := NewChatService(h, tracker, NewHistoryService(repo, nil, 0), repo, 50)
	tracker.OnExpire(svc.NotifyTypingExpired)
	go tracker.Run()
	t.Cleanup(tracker.Stop)

	ctx := context.Background()
	ana := hub.NewClient("a", h, nil, nil, testWSConfig())
	bo := hub.NewClient("b", h, nil, nil, testWSConfig())
	require.NoError(t, svc.HandleJoin(ctx, ana, "lobby", "Ana"))
	drainJoin(t, ana)
	require.NoError(t, svc.HandleJoin(ctx, bo, "lobby", "Bo"))
	drainJoin(t, bo)
	expectEvent(t, ana, domain.EventUserJoined)

	require.NoError(t, svc.HandleTyping(ctx, bo, "Bo"))
	expectEvent(t, ana, domain.EventUserTyping)

	// Bo never sends stop_typing; the sweeper announces it instead.
	ev := expectEvent(t, ana, domain.EventUserStopTyping)
	assert.Equal(t, "Bo", ev["username"])
	assertNoEvent(t, bo)
}

// drainJoin consumes the room_history and room_stats events a join
// delivers to the joining client.
func drainJoin(t *testing.T, c *hub.Client) {
	t.Helper()
	expectEvent(t, c, domain.EventRoomHistory)
	expectEvent(t, c, domain.EventRoomStats)
}
