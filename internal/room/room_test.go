// internal/room/room_test.go
package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchdash/sketchdash/internal/canvas"
	"github.com/sketchdash/sketchdash/internal/game"
)

type stubClassifier struct{}

func (stubClassifier) Classify(_ context.Context, _ []byte, hint string, _ int64) ([]game.RankedLabel, bool, error) {
	return []game.RankedLabel{{Label: hint, Confidence: 0.9}}, true, nil
}

type eventSink struct {
	mu     sync.Mutex
	events []game.Event
}

func (es *eventSink) broadcastFn(ev game.Event) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.events = append(es.events, ev)
}

func (es *eventSink) ofType(t game.EventType) []game.Event {
	es.mu.Lock()
	defer es.mu.Unlock()
	var out []game.Event
	for _, ev := range es.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestRoom() (*Room, *eventSink) {
	r := NewRoom("doodles", VisibilityPrivate)
	sink := &eventSink{}
	r.BroadcastFn = sink.broadcastFn
	r.SendToFn = func(uuid.UUID, game.Event) {}
	return r, sink
}

func TestFirstJoinerBecomesHost(t *testing.T) {
	r, sink := newTestRoom()
	alice, bob := uuid.New(), uuid.New()

	require.NoError(t, r.Join(alice, "alice"))
	require.NoError(t, r.Join(bob, "bob"))

	r.Mu.Lock()
	assert.Equal(t, alice, r.HostID)
	assert.Len(t, r.Members, 2)
	r.Mu.Unlock()

	changes := sink.ofType(game.EventRoomMembersChanged)
	require.Len(t, changes, 2)
	last := changes[1].Payload.(game.MembersChangedPayload)
	assert.Equal(t, alice, last.HostID)
	// Join order survives the map.
	assert.Equal(t, alice, last.Members[0].UserID)
	assert.Equal(t, bob, last.Members[1].UserID)
}

func TestRejoinIsIdempotent(t *testing.T) {
	r, _ := newTestRoom()
	alice := uuid.New()

	require.NoError(t, r.Join(alice, "alice"))
	require.NoError(t, r.Join(alice, "alice the second"))

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Len(t, r.Members, 1)
	assert.Equal(t, "alice the second", r.Members[alice].DisplayName)
	assert.Equal(t, alice, r.HostID)
}

func TestHostReassignedToEarliestJoiner(t *testing.T) {
	r, sink := newTestRoom()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, r.Join(alice, "alice"))
	require.NoError(t, r.Join(bob, "bob"))
	require.NoError(t, r.Join(carol, "carol"))

	r.Leave(alice)

	r.Mu.Lock()
	assert.Equal(t, bob, r.HostID)
	r.Mu.Unlock()

	changed := sink.ofType(game.EventHostChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, bob, changed[0].Payload.(game.HostChangedPayload).NewHostID)
}

func TestNonHostLeaveKeepsHost(t *testing.T) {
	r, sink := newTestRoom()
	alice, bob := uuid.New(), uuid.New()
	require.NoError(t, r.Join(alice, "alice"))
	require.NoError(t, r.Join(bob, "bob"))

	r.Leave(bob)

	r.Mu.Lock()
	assert.Equal(t, alice, r.HostID)
	r.Mu.Unlock()
	assert.Empty(t, sink.ofType(game.EventHostChanged))
}

func TestLastLeaveFiresOnEmpty(t *testing.T) {
	r, _ := newTestRoom()
	emptied := make(chan uuid.UUID, 1)
	r.OnEmpty = func(id uuid.UUID) { emptied <- id }

	alice := uuid.New()
	require.NoError(t, r.Join(alice, "alice"))
	r.Leave(alice)

	select {
	case id := <-emptied:
		assert.Equal(t, r.ID, id)
	default:
		t.Fatal("OnEmpty was not invoked")
	}
}

func TestJoinRejectedOnlyWhileRoundIsLive(t *testing.T) {
	r, _ := newTestRoom()
	alice, bob := uuid.New(), uuid.New()
	require.NoError(t, r.Join(alice, "alice"))
	require.NoError(t, r.Join(bob, "bob"))

	s, err := r.StartSession(alice, game.Config{}, stubClassifier{})
	require.NoError(t, err)

	// The session is waiting on the word pick; spectators may still join.
	require.Equal(t, game.StatusWaiting, s.Status())
	assert.NoError(t, r.Join(uuid.New(), "spectator"))

	drawer := s.DrawerID()
	snap := s.Snapshot(drawer)
	require.NoError(t, s.SelectWord(drawer, snap.WordOptions[0]))

	err = r.Join(uuid.New(), "late")
	assert.ErrorIs(t, err, ErrGameInProgress)

	// Members of the running session may still rejoin.
	assert.NoError(t, r.Join(bob, "bob"))
}

func TestStartSessionHostOnlyAndSingle(t *testing.T) {
	r, _ := newTestRoom()
	alice, bob := uuid.New(), uuid.New()
	require.NoError(t, r.Join(alice, "alice"))
	require.NoError(t, r.Join(bob, "bob"))

	_, err := r.StartSession(bob, game.Config{}, stubClassifier{})
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = r.StartSession(alice, game.Config{}, stubClassifier{})
	require.NoError(t, err)

	_, err = r.StartSession(alice, game.Config{}, stubClassifier{})
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestStartSessionNeedsTwoMembers(t *testing.T) {
	r, _ := newTestRoom()
	alice := uuid.New()
	require.NoError(t, r.Join(alice, "alice"))

	_, err := r.StartSession(alice, game.Config{}, stubClassifier{})
	assert.ErrorIs(t, err, game.ErrTooFewPlayers)
}

func TestSessionFinishDetachesFromRoom(t *testing.T) {
	r, _ := newTestRoom()
	alice, bob := uuid.New(), uuid.New()
	require.NoError(t, r.Join(alice, "alice"))
	require.NoError(t, r.Join(bob, "bob"))

	s, err := r.StartSession(alice, game.Config{}, stubClassifier{})
	require.NoError(t, err)
	require.NoError(t, r.EndSession(alice))
	assert.Equal(t, game.StatusFinished, s.Status())

	require.Eventually(t, func() bool {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		return r.Session == nil
	}, time.Second, 5*time.Millisecond)

	// A fresh session can start once the previous one detached.
	_, err = r.StartSession(alice, game.Config{}, stubClassifier{})
	assert.NoError(t, err)
}

func TestClearCanvasIsHostOnly(t *testing.T) {
	r, sink := newTestRoom()
	alice, bob := uuid.New(), uuid.New()
	require.NoError(t, r.Join(alice, "alice"))
	require.NoError(t, r.Join(bob, "bob"))

	assert.ErrorIs(t, r.ClearCanvas(bob), ErrNotHost)
	require.NoError(t, r.ClearCanvas(alice))

	s, err := r.StartSession(alice, game.Config{}, stubClassifier{})
	require.NoError(t, err)
	drawer := s.DrawerID()
	snap := s.Snapshot(drawer)
	require.NoError(t, s.SelectWord(drawer, snap.WordOptions[0]))

	// Host privilege does not follow the drawer role mid-round.
	assert.ErrorIs(t, r.ClearCanvas(bob), ErrNotHost)
	assert.NoError(t, r.ClearCanvas(alice))
	assert.NotEmpty(t, sink.ofType(game.EventCanvasDelta))
}

func TestStateIncludesStrokesAndRedactedSession(t *testing.T) {
	r, _ := newTestRoom()
	alice, bob := uuid.New(), uuid.New()
	require.NoError(t, r.Join(alice, "alice"))
	require.NoError(t, r.Join(bob, "bob"))

	r.Canvas.Append(canvas.Stroke{UserID: alice, Tool: canvas.ToolPen, Color: "#000", Width: 4})

	s, err := r.StartSession(alice, game.Config{}, stubClassifier{})
	require.NoError(t, err)
	drawer := s.DrawerID()
	snap := s.Snapshot(drawer)
	require.NoError(t, s.SelectWord(drawer, snap.WordOptions[0]))

	state := r.State(bob)
	assert.Len(t, state.Strokes, 1)
	require.NotNil(t, state.Session)
	if drawer != bob {
		assert.Empty(t, state.Session.Word)
		assert.NotEmpty(t, state.Session.WordHint)
	}
	assert.Greater(t, state.Session.TimeRemaining, 0.0)
}
