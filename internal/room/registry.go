// internal/room/registry.go
package room

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Registry manages the live rooms in memory. It provides thread-safe create,
// resolve and destroy, and owns the access code pool. Registry.mu is never
// held while a Room.Mu is taken.
type Registry struct {
	mu     sync.Mutex
	rooms  map[uuid.UUID]*Room
	byCode map[string]uuid.UUID
	codes  *CodeIssuer
	logger *logrus.Logger
}

// NewRegistry initializes an empty registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		rooms:  make(map[uuid.UUID]*Room),
		byCode: make(map[string]uuid.UUID),
		codes:  NewCodeIssuer(rand.New(rand.NewSource(time.Now().UnixNano()))),
		logger: logger,
	}
}

// CreateRoom builds a room, assigns it a fresh access code and registers it.
func (reg *Registry) CreateRoom(name string, visibility Visibility) (*Room, error) {
	code, err := reg.codes.Issue()
	if err != nil {
		return nil, err
	}

	r := NewRoom(name, visibility)
	r.AccessCode = code
	r.OnEmpty = func(roomID uuid.UUID) { reg.Destroy(roomID) }

	reg.mu.Lock()
	reg.rooms[r.ID] = r
	reg.byCode[code] = r.ID
	reg.mu.Unlock()

	reg.logger.WithFields(logrus.Fields{
		"room_id": r.ID,
		"code":    code,
		"name":    name,
	}).Info("room created")
	return r, nil
}

// Get retrieves a room by ID.
func (reg *Registry) Get(id uuid.UUID) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// ResolveCode retrieves a room by access code.
func (reg *Registry) ResolveCode(code string) (*Room, error) {
	if !ValidCodeShape(code) {
		return nil, ErrInvalidAccessCode
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	id, ok := reg.byCode[NormalizeCode(code)]
	if !ok {
		return nil, ErrInvalidAccessCode
	}
	return reg.rooms[id], nil
}

// Resolve accepts either a room UUID or an access code, trying the UUID shape
// first. This is what the join endpoint feeds user input through.
func (reg *Registry) Resolve(codeOrID string) (*Room, error) {
	if id, err := uuid.Parse(codeOrID); err == nil {
		return reg.Get(id)
	}
	return reg.ResolveCode(codeOrID)
}

// Destroy removes a room and reclaims its access code. Destroying an unknown
// room is a no-op.
func (reg *Registry) Destroy(id uuid.UUID) {
	reg.mu.Lock()
	r, ok := reg.rooms[id]
	if ok {
		delete(reg.rooms, id)
		delete(reg.byCode, r.AccessCode)
	}
	reg.mu.Unlock()

	if !ok {
		return
	}
	reg.codes.Release(r.AccessCode)
	reg.logger.WithField("room_id", id).Info("room destroyed")
}

// Summary is the public listing projection of a room.
type Summary struct {
	RoomID      uuid.UUID `json:"roomId"`
	Name        string    `json:"name"`
	MemberCount int       `json:"memberCount"`
	InGame      bool      `json:"inGame"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListPublic returns summaries of every public room, oldest first. Access
// codes are deliberately absent from the projection.
func (reg *Registry) ListPublic() []Summary {
	reg.mu.Lock()
	rooms := lo.Filter(lo.Values(reg.rooms), func(r *Room, _ int) bool {
		return r.Visibility == VisibilityPublic
	})
	reg.mu.Unlock()

	summaries := lo.Map(rooms, func(r *Room, _ int) Summary {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		return Summary{
			RoomID:      r.ID,
			Name:        r.Name,
			MemberCount: len(r.Members),
			InGame:      r.Session != nil,
			CreatedAt:   r.CreatedAt,
		}
	})
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// Len reports the number of live rooms.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
