// internal/lifecycle/monitor_test.go
package lifecycle

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webdarts/signaling-service/internal/models"
	"github.com/webdarts/signaling-service/internal/relay"
)

type fakeRooms struct {
	mu      sync.Mutex
	removed []string
	players map[string]int
	rooms   []*models.Room
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{players: make(map[string]int)}
}

func (f *fakeRooms) Remove(_ context.Context, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, code)
}

func (f *fakeRooms) SetPlayers(_ context.Context, code string, players int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.players[code] = players
}

func (f *fakeRooms) All() []*models.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms
}

type broadcastEvent struct {
	roomID string
	kind   string
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (f *fakeBroadcaster) Broadcast(roomID, _, kind string, _ relay.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastEvent{roomID: roomID, kind: kind})
}

func testMonitor() (*Monitor, *fakeRooms, *fakeBroadcaster) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rooms := newFakeRooms()
	bc := &fakeBroadcaster{}
	return New(rooms, bc, logger), rooms, bc
}

func TestJoinRefreshesPlayerCount(t *testing.T) {
	mon, rooms, _ := testMonitor()
	ctx := context.Background()

	mon.OnJoin(ctx, "AB12C", "c1")
	assert.Equal(t, 1, rooms.players["AB12C"])
	assert.True(t, mon.IsLive("AB12C"))

	mon.OnJoin(ctx, "AB12C", "c2")
	assert.Equal(t, 2, rooms.players["AB12C"])
	assert.Equal(t, 1, mon.ActiveSessions())
}

func TestLastLeaveTearsDownRoom(t *testing.T) {
	mon, rooms, _ := testMonitor()
	ctx := context.Background()

	mon.OnJoin(ctx, "AB12C", "c1")
	mon.OnJoin(ctx, "AB12C", "c2")

	mon.OnLeave(ctx, "AB12C", "c1")
	assert.Empty(t, rooms.removed)
	assert.Equal(t, 1, rooms.players["AB12C"])

	mon.OnLeave(ctx, "AB12C", "c2")
	assert.Equal(t, []string{"AB12C"}, rooms.removed)
	assert.Equal(t, 0, mon.ActiveSessions())
	assert.False(t, mon.IsLive("AB12C"))
}

func TestLeaveUnknownRoomIsNoop(t *testing.T) {
	mon, rooms, _ := testMonitor()
	mon.OnLeave(context.Background(), "NOPE1", "c1")
	assert.Empty(t, rooms.removed)
}

func TestExplicitEndNotifiesPeers(t *testing.T) {
	mon, rooms, bc := testMonitor()
	ctx := context.Background()

	mon.OnJoin(ctx, "AB12C", "c1")
	mon.OnJoin(ctx, "AB12C", "c2")

	mon.OnExplicitEnd(ctx, "AB12C")

	require.Len(t, bc.events, 1)
	assert.Equal(t, "room-ended", bc.events[0].kind)
	assert.Equal(t, "AB12C", bc.events[0].roomID)
	assert.Equal(t, []string{"AB12C"}, rooms.removed)
	assert.Equal(t, 0, mon.ActiveSessions())
}

// stallingRooms blocks the players==2 count refresh until released, exposing
// any window where a concurrent leave could slip its count in underneath.
type stallingRooms struct {
	mu      sync.Mutex
	writes  []int
	stalled chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *stallingRooms) SetPlayers(_ context.Context, _ string, players int) {
	if players == 2 {
		f.once.Do(func() { close(f.stalled) })
		<-f.release
	}
	f.mu.Lock()
	f.writes = append(f.writes, players)
	f.mu.Unlock()
}

func (f *stallingRooms) Remove(context.Context, string) {}

func (f *stallingRooms) All() []*models.Room { return nil }

func TestPlayerCountRefreshSerialized(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rooms := &stallingRooms{stalled: make(chan struct{}), release: make(chan struct{})}
	mon := New(rooms, &fakeBroadcaster{}, logger)
	ctx := context.Background()

	mon.OnJoin(ctx, "AB12C", "c1")

	joinDone := make(chan struct{})
	go func() {
		mon.OnJoin(ctx, "AB12C", "c2")
		close(joinDone)
	}()
	<-rooms.stalled

	leaveDone := make(chan struct{})
	go func() {
		mon.OnLeave(ctx, "AB12C", "c1")
		close(leaveDone)
	}()

	// The leave must wait for the in-flight join's count refresh, otherwise
	// the join's players=2 lands after the leave's players=1 and sticks.
	select {
	case <-leaveDone:
		t.Fatal("leave overtook the in-flight join's count refresh")
	case <-time.After(50 * time.Millisecond):
	}

	close(rooms.release)
	<-joinDone
	<-leaveDone

	rooms.mu.Lock()
	writes := append([]int(nil), rooms.writes...)
	rooms.mu.Unlock()
	require.Equal(t, []int{1, 2, 1}, writes)
}

func TestSweepReapsEndedSessions(t *testing.T) {
	mon, rooms, _ := testMonitor()
	ctx := context.Background()

	mon.OnJoin(ctx, "AB12C", "c1")
	mon.OnLeave(ctx, "AB12C", "c1")
	assert.Equal(t, []string{"AB12C"}, rooms.removed)
	assert.Equal(t, 0, mon.ActiveSessions())

	mon.Sweep(ctx, time.Now())

	mon.mu.Lock()
	_, ok := mon.sessions["AB12C"]
	mon.mu.Unlock()
	assert.False(t, ok)
	// The room was already torn down on the last leave; the sweep must not
	// remove it a second time.
	assert.Equal(t, []string{"AB12C"}, rooms.removed)
}

func TestRejoinAfterTeardownStartsFreshSession(t *testing.T) {
	mon, rooms, _ := testMonitor()
	ctx := context.Background()

	mon.OnJoin(ctx, "AB12C", "c1")
	mon.OnLeave(ctx, "AB12C", "c1")
	assert.False(t, mon.IsLive("AB12C"))

	mon.OnJoin(ctx, "AB12C", "c2")
	assert.True(t, mon.IsLive("AB12C"))
	assert.Equal(t, 1, rooms.players["AB12C"])
	assert.Equal(t, 1, mon.ActiveSessions())
}

func TestSweepRemovesStaleSessions(t *testing.T) {
	mon, rooms, _ := testMonitor()
	now := time.Now()

	// A session whose participants are all gone but which was never torn
	// down, stale past the threshold.
	mon.sessions["STALE"] = &session{
		createdAt:    now.Add(-2 * time.Hour),
		lastActivity: now.Add(-time.Hour),
		participants: make(map[string]struct{}),
	}
	// Recently active empty session: kept.
	mon.sessions["FRESH"] = &session{
		createdAt:    now.Add(-time.Hour),
		lastActivity: now.Add(-time.Minute),
		participants: make(map[string]struct{}),
	}
	// Occupied session: kept regardless of age.
	mon.sessions["BUSY1"] = &session{
		createdAt:    now.Add(-3 * time.Hour),
		lastActivity: now.Add(-2 * time.Hour),
		participants: map[string]struct{}{"c1": {}},
	}

	mon.Sweep(context.Background(), now)

	assert.Equal(t, []string{"STALE"}, rooms.removed)
	assert.Equal(t, 2, mon.ActiveSessions())
}

func TestSweepExpiresAgedRooms(t *testing.T) {
	mon, rooms, _ := testMonitor()
	now := time.Now()

	rooms.rooms = []*models.Room{
		{Code: "OLD01", Created: now.Add(-25 * time.Hour)},
		{Code: "NEW01", Created: now.Add(-time.Hour)},
		{Code: "LIVE1", Created: now.Add(-25 * time.Hour)},
	}
	// LIVE1 has an active session, so age alone must not expire it.
	mon.OnJoin(context.Background(), "LIVE1", "c1")

	mon.Sweep(context.Background(), now)

	assert.Equal(t, []string{"OLD01"}, rooms.removed)
}
