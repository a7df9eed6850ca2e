// internal/canvas/canvas.go
package canvas

import (
	"sync"

	"github.com/google/uuid"
)

// Tool identifies the drawing tool a stroke was made with.
type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
)

// Point is a single coordinate on the shared surface.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one contiguous mark on the canvas, owned by the member who drew it.
type Stroke struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"userId"`
	Tool   Tool      `json:"tool"`
	Color  string    `json:"color"`
	Width  float64   `json:"width"`
	Points []Point   `json:"points"`
}

// DeltaKind tags the mutation a Delta describes.
type DeltaKind string

const (
	DeltaAppend DeltaKind = "append"
	DeltaUndo   DeltaKind = "undo"
	DeltaRedo   DeltaKind = "redo"
	DeltaClear  DeltaKind = "clear"
)

// Delta describes the result of a single canvas mutation. The boundary layer
// broadcasts deltas to the rest of the room; the store itself does no I/O.
type Delta struct {
	Kind     DeltaKind `json:"kind"`
	UserID   uuid.UUID `json:"userId"`
	Stroke   *Stroke   `json:"stroke,omitempty"`
	StrokeID uuid.UUID `json:"strokeId,omitempty"`
}

// Store is a per-room append-only stroke log with per-participant undo/redo
// stacks. Undo removes the caller's most recent stroke (not the globally most
// recent one) and parks it on that caller's redo stack; a fresh append by the
// same caller invalidates their redo history.
type Store struct {
	mu      sync.Mutex
	strokes []Stroke
	redo    map[uuid.UUID][]Stroke
}

func NewStore() *Store {
	return &Store{
		strokes: make([]Stroke, 0),
		redo:    make(map[uuid.UUID][]Stroke),
	}
}

// Append adds a stroke to the log. It assigns the stroke an ID if it has none
// and clears the owner's redo stack.
func (s *Store) Append(stroke Stroke) Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stroke.ID == uuid.Nil {
		stroke.ID = uuid.New()
	}
	s.strokes = append(s.strokes, stroke)
	delete(s.redo, stroke.UserID)

	appended := stroke
	return Delta{Kind: DeltaAppend, UserID: stroke.UserID, Stroke: &appended, StrokeID: appended.ID}
}

// Undo removes userID's most recent stroke from the log and pushes it onto
// their redo stack. Returns false if the user has no strokes on the canvas.
func (s *Store) Undo(userID uuid.UUID) (Delta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.strokes) - 1; i >= 0; i-- {
		if s.strokes[i].UserID != userID {
			continue
		}
		stroke := s.strokes[i]
		s.strokes = append(s.strokes[:i], s.strokes[i+1:]...)
		s.redo[userID] = append(s.redo[userID], stroke)
		return Delta{Kind: DeltaUndo, UserID: userID, StrokeID: stroke.ID}, true
	}
	return Delta{}, false
}

// Redo restores the stroke most recently undone by userID. Returns false if
// their redo stack is empty.
func (s *Store) Redo(userID uuid.UUID) (Delta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stack := s.redo[userID]
	if len(stack) == 0 {
		return Delta{}, false
	}
	stroke := stack[len(stack)-1]
	s.redo[userID] = stack[:len(stack)-1]
	s.strokes = append(s.strokes, stroke)

	restored := stroke
	return Delta{Kind: DeltaRedo, UserID: userID, Stroke: &restored, StrokeID: restored.ID}, true
}

// Clear wipes the stroke log and every redo stack. The caller is recorded on
// the delta; host-only enforcement happens at the coordinator layer.
func (s *Store) Clear(userID uuid.UUID) Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strokes = s.strokes[:0]
	s.redo = make(map[uuid.UUID][]Stroke)
	return Delta{Kind: DeltaClear, UserID: userID}
}

// Strokes returns a copy of the current stroke log, oldest first.
func (s *Store) Strokes() []Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Stroke, len(s.strokes))
	copy(out, s.strokes)
	return out
}

// Len reports the number of strokes currently on the canvas.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.strokes)
}
