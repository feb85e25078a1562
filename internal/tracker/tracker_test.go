// internal/tracker/tracker_test.go
package tracker

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTracker() *Tracker {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(logger)
}

func TestParticipantsJoinOrder(t *testing.T) {
	tr := testTracker()
	tr.RegisterJoin("c1", "room-a", "alice", true)
	tr.RegisterJoin("c2", "room-a", "bob", false)
	tr.RegisterJoin("c3", "room-a", "carol", false)

	all := tr.Participants("room-a", "")
	require.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].Username)
	assert.Equal(t, "bob", all[1].Username)
	assert.Equal(t, "carol", all[2].Username)
	assert.True(t, all[0].IsHost)

	others := tr.Participants("room-a", "c2")
	require.Len(t, others, 2)
	assert.Equal(t, "c1", others[0].ID)
	assert.Equal(t, "c3", others[1].ID)
}

func TestOneRoomPerConnection(t *testing.T) {
	tr := testTracker()
	tr.RegisterJoin("c1", "room-a", "alice", true)

	left := tr.RegisterJoin("c1", "room-b", "alice", false)
	require.NotNil(t, left)
	assert.Equal(t, "room-a", left.RoomID)
	assert.Equal(t, 0, left.Remaining)

	assert.Empty(t, tr.Participants("room-a", ""))
	room, ok := tr.RoomOf("c1")
	require.True(t, ok)
	assert.Equal(t, "room-b", room)
}

func TestRejoinSameRoom(t *testing.T) {
	tr := testTracker()
	tr.RegisterJoin("c1", "room-a", "alice", true)
	tr.RegisterJoin("c2", "room-a", "bob", false)

	left := tr.RegisterJoin("c1", "room-a", "alice2", true)
	assert.Nil(t, left)

	all := tr.Participants("room-a", "")
	require.Len(t, all, 2)
	// Identity refreshed, position kept.
	assert.Equal(t, "alice2", all[0].Username)
}

func TestUnregisterIdempotent(t *testing.T) {
	tr := testTracker()
	tr.RegisterJoin("c1", "room-a", "alice", true)
	tr.RegisterJoin("c2", "room-a", "bob", false)

	info := tr.Unregister("c1")
	require.NotNil(t, info)
	assert.Equal(t, "room-a", info.RoomID)
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, 1, info.Remaining)

	assert.Nil(t, tr.Unregister("c1"))
	assert.Nil(t, tr.Unregister("never-seen"))
	assert.Equal(t, 1, tr.Count())
}

func TestLastLeaveClearsRoom(t *testing.T) {
	tr := testTracker()
	tr.RegisterJoin("c1", "room-a", "alice", true)

	info := tr.Unregister("c1")
	require.NotNil(t, info)
	assert.Equal(t, 0, info.Remaining)
	assert.Empty(t, tr.Participants("room-a", ""))
	_, ok := tr.RoomOf("c1")
	assert.False(t, ok)
}
