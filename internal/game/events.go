// internal/game/events.go
package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/sketchdash/sketchdash/internal/canvas"
)

// EventType is an enum-like type for the closed set of outbound messages.
type EventType string

const (
	// Room-level events.
	EventRoomMembersChanged EventType = "room_members_changed"
	EventHostChanged        EventType = "host_changed"
	EventCanvasDelta        EventType = "canvas_delta"

	// Session-level events.
	EventGameInitialized    EventType = "game_initialized"
	EventGameWordOptions    EventType = "game_word_options" // targeted: drawer only
	EventGameStarted        EventType = "game_started"
	EventGameWordHint       EventType = "game_word_hint" // targeted: everyone but the drawer
	EventGameGuess          EventType = "game_guess_broadcast"
	EventGameCorrectGuess   EventType = "game_correct_guess"
	EventGameRoundEnd       EventType = "game_round_end"
	EventGameNextTurn       EventType = "game_next_turn"
	EventGameTimeout        EventType = "game_timeout"
	EventGameFinished       EventType = "game_finished"
	EventGamePrediction     EventType = "game_prediction_update" // targeted: drawer only
	EventGameSessionSync    EventType = "game_session_sync"      // targeted: reconnecting member
	EventError              EventType = "error"
)

// Event is the envelope broadcast to room members. Core packages hand events to
// injected broadcast functions and never touch sockets directly.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// MemberInfo is the public projection of one room member.
type MemberInfo struct {
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	CursorX     float64   `json:"cursorX"`
	CursorY     float64   `json:"cursorY"`
}

// MembersChangedPayload carries the authoritative member list after any join or leave.
type MembersChangedPayload struct {
	RoomID  uuid.UUID    `json:"roomId"`
	HostID  uuid.UUID    `json:"hostId"`
	Members []MemberInfo `json:"members"`
}

// HostChangedPayload announces host reassignment after the previous host left.
type HostChangedPayload struct {
	RoomID    uuid.UUID `json:"roomId"`
	NewHostID uuid.UUID `json:"newHostId"`
}

// CanvasDeltaPayload wraps a canvas mutation for broadcast (sender excluded).
type CanvasDeltaPayload struct {
	RoomID uuid.UUID    `json:"roomId"`
	Delta  canvas.Delta `json:"delta"`
}

// InitializedPayload announces a freshly created session in the waiting state.
type InitializedPayload struct {
	SessionID   uuid.UUID `json:"sessionId"`
	TotalRounds int       `json:"totalRounds"`
	TimeLimit   int       `json:"timeLimitSeconds"`
	DrawerID    uuid.UUID `json:"drawerId"`
}

// WordOptionsPayload is sent to the drawer only.
type WordOptionsPayload struct {
	Options []string `json:"options"`
}

// StartedPayload announces the transition into playing. Each member gets a
// targeted copy; only the drawer's carries the word, which matters when the
// choose timeout force-started the round with a word they never picked.
type StartedPayload struct {
	Round     int       `json:"round"`
	DrawerID  uuid.UUID `json:"drawerId"`
	TimeLimit int       `json:"timeLimitSeconds"`
	Word      string    `json:"word,omitempty"`
}

// WordHintPayload carries the masked word to guessers.
type WordHintPayload struct {
	Mask   string `json:"mask"`
	Length int    `json:"length"`
}

// GuessPayload echoes an incorrect guess to the room.
type GuessPayload struct {
	UserID uuid.UUID `json:"userId"`
	Text   string    `json:"text"`
}

// CorrectGuessPayload announces a correct guess. The guessed word is withheld
// until the round ends.
type CorrectGuessPayload struct {
	UserID      uuid.UUID `json:"userId"`
	TimeTakenMs int64     `json:"timeTakenMs"`
	Points      int       `json:"points"`
}

// RoundEndPayload reveals the word and carries scores at the end of a round.
type RoundEndPayload struct {
	Round        int           `json:"round"`
	Word         string        `json:"word"`
	Reason       string        `json:"reason"` // "all_guessed", "early_submit", "timeout", "drawer_left"
	DrawerID     uuid.UUID     `json:"drawerId"`
	DrawerPoints int           `json:"drawerPoints"`
	Players      []PlayerState `json:"players"`
}

// NextTurnPayload announces the next drawer after a round ends.
type NextTurnPayload struct {
	Round    int       `json:"round"`
	DrawerID uuid.UUID `json:"drawerId"`
}

// FinishedPayload carries the final scoreboard. Winners are every player tied
// at the maximum score.
type FinishedPayload struct {
	Players []PlayerState `json:"players"`
	Winners []uuid.UUID   `json:"winners"`
}

// PredictionPayload relays oracle output to the drawer.
type PredictionPayload struct {
	Labels   []RankedLabel `json:"labels"`
	Fallback bool          `json:"fallback"`
}

// RankedLabel mirrors predict.Prediction without importing the package here.
type RankedLabel struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // unit interval
}

// Snapshot is the redacted session view sent to a (re)joining member. The
// secret word is present only when the recipient is the drawer, and
// TimeRemaining is derived from the running clock rather than reset.
type Snapshot struct {
	SessionID     uuid.UUID     `json:"sessionId"`
	Status        Status        `json:"status"`
	CurrentRound  int           `json:"currentRound"`
	TotalRounds   int           `json:"totalRounds"`
	TimeLimit     int           `json:"timeLimitSeconds"`
	DrawerID      uuid.UUID     `json:"drawerId"`
	Word          string        `json:"word,omitempty"`
	WordOptions   []string      `json:"wordOptions,omitempty"`
	WordHint      string        `json:"wordHint,omitempty"`
	TimeRemaining float64       `json:"timeRemainingSeconds"`
	Players       []PlayerState `json:"players"`
}

// elapsedMs converts a duration since round start to wall-clock milliseconds.
func elapsedMs(since time.Time) int64 {
	return time.Since(since).Milliseconds()
}
