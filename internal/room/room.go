// internal/room/room.go
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/sketchdash/sketchdash/internal/canvas"
	"github.com/sketchdash/sketchdash/internal/game"
)

// Visibility controls whether a room appears in the public listing.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Member is one user's presence in a room. JoinSeq preserves join order so
// host reassignment and drawer rotation stay deterministic.
type Member struct {
	UserID      uuid.UUID
	DisplayName string
	JoinSeq     int
	CursorX     float64
	CursorY     float64
}

// Room is an ephemeral grouping of users around one shared canvas and at most
// one game session. Mu protects members, host and the session pointer; the
// canvas carries its own lock. Lock order is always Room.Mu before the
// session's internal lock.
type Room struct {
	ID         uuid.UUID
	Name       string
	AccessCode string
	Visibility Visibility
	CreatedAt  time.Time

	Mu      sync.Mutex
	HostID  uuid.UUID
	Members map[uuid.UUID]*Member
	joinSeq int

	Canvas  *canvas.Store
	Session *game.Session

	// BroadcastFn sends an event to every connected member; SendToFn targets
	// one. Both are wired by the transport layer before the first join.
	BroadcastFn func(ev game.Event)
	SendToFn    func(userID uuid.UUID, ev game.Event)

	// OnEmpty is called after the last member leaves, typically wired by the
	// registry to destroy the room and reclaim its access code.
	OnEmpty func(roomID uuid.UUID)
}

// NewRoom builds an empty room. The registry assigns the access code.
func NewRoom(name string, visibility Visibility) *Room {
	if visibility != VisibilityPublic {
		visibility = VisibilityPrivate
	}
	return &Room{
		ID:         uuid.New(),
		Name:       name,
		Visibility: visibility,
		CreatedAt:  time.Now(),
		Members:    make(map[uuid.UUID]*Member),
		Canvas:     canvas.NewStore(),
	}
}

// Join adds a user to the room, or refreshes their display name if they are
// already present (a reconnect). The first member becomes host. New joins are
// refused only while a round is live (playing or round_end); a session still
// waiting on a word pick accepts spectators, and members may always rejoin.
func (r *Room) Join(userID uuid.UUID, displayName string) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if m, ok := r.Members[userID]; ok {
		// Idempotent rejoin; membership and scores are untouched.
		if displayName != "" {
			m.DisplayName = displayName
		}
		r.broadcastMembersLocked()
		return nil
	}

	if r.Session != nil {
		switch r.Session.Status() {
		case game.StatusPlaying, game.StatusRoundEnd:
			return ErrGameInProgress
		}
	}

	r.joinSeq++
	r.Members[userID] = &Member{
		UserID:      userID,
		DisplayName: displayName,
		JoinSeq:     r.joinSeq,
	}
	if len(r.Members) == 1 {
		r.HostID = userID
	}
	r.broadcastMembersLocked()
	return nil
}

// Leave removes a user. The departing host is replaced by the earliest
// remaining joiner; a running session is told about the departure. The last
// member leaving triggers OnEmpty.
func (r *Room) Leave(userID uuid.UUID) {
	r.Mu.Lock()

	if _, ok := r.Members[userID]; !ok {
		r.Mu.Unlock()
		return
	}
	delete(r.Members, userID)
	session := r.Session

	if len(r.Members) == 0 {
		onEmpty := r.OnEmpty
		roomID := r.ID
		r.Mu.Unlock()
		if session != nil {
			session.HandleDisconnect(userID)
		}
		if onEmpty != nil {
			onEmpty(roomID)
		}
		return
	}

	if r.HostID == userID {
		r.HostID = r.earliestMemberLocked().UserID
		r.broadcast(game.Event{Type: game.EventHostChanged, Payload: game.HostChangedPayload{
			RoomID:    r.ID,
			NewHostID: r.HostID,
		}})
	}
	r.broadcastMembersLocked()
	r.Mu.Unlock()

	// Outside Room.Mu: the session may finish and call back into the room.
	if session != nil {
		session.HandleDisconnect(userID)
	}
}

// UpdateCursor records a member's pointer position and fans the member list
// out. Unknown users are ignored.
func (r *Room) UpdateCursor(userID uuid.UUID, x, y float64) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	m, ok := r.Members[userID]
	if !ok {
		return
	}
	m.CursorX = x
	m.CursorY = y
	r.broadcastMembersLocked()
}

// StartSession creates and begins a game session. Only the host may start,
// and only when no session is running.
func (r *Room) StartSession(userID uuid.UUID, cfg game.Config, classifier game.Classifier) (*game.Session, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HostID != userID {
		return nil, ErrNotHost
	}
	if r.Session != nil && r.Session.Status() != game.StatusFinished {
		return nil, ErrGameInProgress
	}

	s, err := game.NewSession(r.ID, cfg, r.memberInfosLocked(), classifier)
	if err != nil {
		return nil, err
	}
	s.BroadcastFn = r.broadcast
	s.SendToFn = r.sendTo
	s.OnFinished = func(*game.Session) {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if r.Session == s {
			r.Session = nil
		}
	}
	r.Session = s
	s.Begin()
	return s, nil
}

// EndSession terminates a running session. Host only.
func (r *Room) EndSession(userID uuid.UUID) error {
	r.Mu.Lock()
	if r.HostID != userID {
		r.Mu.Unlock()
		return ErrNotHost
	}
	session := r.Session
	r.Mu.Unlock()

	if session == nil {
		return nil
	}
	session.End()
	return nil
}

// RequestNextTurn forwards a host skip of the round-end grace delay.
func (r *Room) RequestNextTurn(userID uuid.UUID) error {
	r.Mu.Lock()
	if r.HostID != userID {
		r.Mu.Unlock()
		return ErrNotHost
	}
	session := r.Session
	r.Mu.Unlock()

	if session == nil {
		return ErrNoSession
	}
	return session.RequestNextTurn()
}

// ClearCanvas wipes the stroke log and every undo stack. Host only.
func (r *Room) ClearCanvas(userID uuid.UUID) error {
	r.Mu.Lock()
	isHost := r.HostID == userID
	r.Mu.Unlock()

	if !isHost {
		return ErrNotHost
	}
	delta := r.Canvas.Clear(userID)
	r.broadcast(game.Event{Type: game.EventCanvasDelta, Payload: game.CanvasDeltaPayload{
		RoomID: r.ID,
		Delta:  delta,
	}})
	return nil
}

// IsMember reports membership.
func (r *Room) IsMember(userID uuid.UUID) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	_, ok := r.Members[userID]
	return ok
}

// MemberInfos returns the member list in join order.
func (r *Room) MemberInfos() []game.MemberInfo {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.memberInfosLocked()
}

// StatePayload assembles the full room state for a (re)joining member: the
// member list, every live stroke, and (when a session exists) the redacted
// session snapshot for that member.
type StatePayload struct {
	RoomID     uuid.UUID         `json:"roomId"`
	Name       string            `json:"name"`
	AccessCode string            `json:"accessCode"`
	HostID     uuid.UUID         `json:"hostId"`
	Members    []game.MemberInfo `json:"members"`
	Strokes    []canvas.Stroke   `json:"strokes"`
	Session    *game.Snapshot    `json:"session,omitempty"`
}

// State builds the sync payload sent to forUser on connect.
func (r *Room) State(forUser uuid.UUID) StatePayload {
	r.Mu.Lock()
	session := r.Session
	payload := StatePayload{
		RoomID:     r.ID,
		Name:       r.Name,
		AccessCode: r.AccessCode,
		HostID:     r.HostID,
		Members:    r.memberInfosLocked(),
	}
	r.Mu.Unlock()

	payload.Strokes = r.Canvas.Strokes()
	if session != nil && session.Status() != game.StatusFinished {
		snap := session.Snapshot(forUser)
		payload.Session = &snap
	}
	return payload
}

// --- internals; *Locked methods assume r.Mu is held ---

func (r *Room) earliestMemberLocked() *Member {
	return lo.MinBy(lo.Values(r.Members), func(a, b *Member) bool {
		return a.JoinSeq < b.JoinSeq
	})
}

func (r *Room) memberInfosLocked() []game.MemberInfo {
	members := lo.Values(r.Members)
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinSeq < members[j].JoinSeq
	})
	return lo.Map(members, func(m *Member, _ int) game.MemberInfo {
		return game.MemberInfo{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			CursorX:     m.CursorX,
			CursorY:     m.CursorY,
		}
	})
}

func (r *Room) broadcastMembersLocked() {
	r.broadcast(game.Event{Type: game.EventRoomMembersChanged, Payload: game.MembersChangedPayload{
		RoomID:  r.ID,
		HostID:  r.HostID,
		Members: r.memberInfosLocked(),
	}})
}

func (r *Room) broadcast(ev game.Event) {
	if r.BroadcastFn != nil {
		r.BroadcastFn(ev)
	}
}

func (r *Room) sendTo(userID uuid.UUID, ev game.Event) {
	if r.SendToFn != nil {
		r.SendToFn(userID, ev)
	}
}
