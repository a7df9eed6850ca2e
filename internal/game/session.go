// internal/game/session.go
package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Status is the session state machine position.
type Status string

const (
	StatusWaiting  Status = "waiting"   // drawer holds word options, has not chosen
	StatusPlaying  Status = "playing"   // round clock running, guesses accepted
	StatusRoundEnd Status = "round_end" // scores revealed, grace delay before advance
	StatusFinished Status = "finished"  // terminal
)

// Round-end reasons carried on RoundEndPayload.
const (
	ReasonAllGuessed  = "all_guessed"
	ReasonEarlySubmit = "early_submit"
	ReasonTimeout     = "timeout"
	ReasonDrawerLeft  = "drawer_left"
	ReasonEnded       = "ended"
)

// PlayerState is one participant's standing within a session. Score is
// monotonically non-decreasing for the session's lifetime.
type PlayerState struct {
	UserID             uuid.UUID `json:"userId"`
	DisplayName        string    `json:"displayName"`
	Score              int       `json:"score"`
	CorrectGuessCount  int       `json:"correctGuessCount"`
	IsDrawing          bool      `json:"isDrawing"`
	HasPlayedThisRound bool      `json:"hasPlayedThisRound"`
}

// GuessRecord notes one correct guess and how long into the round it landed.
type GuessRecord struct {
	UserID      uuid.UUID `json:"userId"`
	TimeTakenMs int64     `json:"timeTakenMs"`
	Word        string    `json:"word"`
}

// Classifier is the slice of the prediction gateway the coordinator needs.
// The bool result reports whether the labels are authoritative (false means
// the gateway fell back to its deterministic offline ranking).
type Classifier interface {
	Classify(ctx context.Context, image []byte, hint string, seed int64) ([]RankedLabel, bool, error)
}

// Recorder receives best-effort result records for the external historian.
type Recorder interface {
	Record(kind string, sessionID uuid.UUID, payload map[string]any)
}

// Config carries the tunables for one session. Zero values are filled with
// defaults by NewSession.
type Config struct {
	TotalRounds int
	RoundTime   time.Duration
	ChooseTime  time.Duration // how long the drawer may pick before force-starting with a default word
	GraceDelay  time.Duration // round_end pause before the automatic advance
	WordOptions int
	GuessTable  ScoreTable
	DrawerTable ScoreTable
	Words       *WordBank
}

func (c *Config) withDefaults() {
	if c.TotalRounds <= 0 {
		c.TotalRounds = 3
	}
	if c.RoundTime <= 0 {
		c.RoundTime = 80 * time.Second
	}
	if c.ChooseTime <= 0 {
		c.ChooseTime = 15 * time.Second
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = 5 * time.Second
	}
	if c.WordOptions <= 0 {
		c.WordOptions = 3
	}
	if c.GuessTable == nil {
		c.GuessTable = DefaultGuessTable
	}
	if c.DrawerTable == nil {
		c.DrawerTable = DefaultDrawerTable
	}
	if c.Words == nil {
		c.Words = NewWordBank()
	}
}

// drawerFinishBonus is awarded per correct guesser when a round ends with
// every guesser correct.
const drawerFinishBonus = 50

// Session is one run of the turn-based game inside a room. All state is
// guarded by mu; broadcast functions are injected so the session never touches
// sockets, and the oracle call is the only operation performed without the
// lock held.
type Session struct {
	ID     uuid.UUID
	RoomID uuid.UUID

	mu             sync.Mutex
	cfg            Config
	status         Status
	currentRound   int
	currentWord    string
	wordOptions    []string
	roundStartedAt time.Time
	players        []*PlayerState
	correct        []GuessRecord
	clock          *RoundClock

	classifier Classifier
	recorder   Recorder

	// BroadcastFn sends an event to every room member; SendToFn targets one.
	BroadcastFn func(ev Event)
	SendToFn    func(userID uuid.UUID, ev Event)

	// OnFinished is invoked (on its own goroutine) once the session reaches
	// the finished state, so the owning room can drop it.
	OnFinished func(s *Session)
}

// NewSession creates a session in the waiting state with the first member as
// drawer and announces it. members must hold at least two entries, in join
// order.
func NewSession(roomID uuid.UUID, cfg Config, members []MemberInfo, classifier Classifier) (*Session, error) {
	if len(members) < 2 {
		return nil, ErrTooFewPlayers
	}
	cfg.withDefaults()

	s := &Session{
		ID:         uuid.New(),
		RoomID:     roomID,
		cfg:        cfg,
		status:     StatusWaiting,
		clock:      NewRoundClock(),
		classifier: classifier,
		players: lo.Map(members, func(m MemberInfo, _ int) *PlayerState {
			return &PlayerState{UserID: m.UserID, DisplayName: m.DisplayName}
		}),
	}
	s.players[0].IsDrawing = true
	s.currentRound = 1
	return s, nil
}

// Begin announces the session and opens the first turn. Callers must have
// wired BroadcastFn/SendToFn first.
func (s *Session) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	drawer := s.drawerLocked()
	s.broadcast(Event{Type: EventGameInitialized, Payload: InitializedPayload{
		SessionID:   s.ID,
		TotalRounds: s.cfg.TotalRounds,
		TimeLimit:   int(s.cfg.RoundTime.Seconds()),
		DrawerID:    drawer.UserID,
	}})
	s.openTurnLocked(drawer)
}

// SetRecorder attaches a best-effort result recorder.
func (s *Session) SetRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = r
}

// Status returns the current state machine position.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// DrawerID returns the current drawer, or uuid.Nil outside waiting/playing.
func (s *Session) DrawerID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.drawerLocked(); d != nil {
		return d.UserID
	}
	return uuid.Nil
}

// Players returns a copy of the player standings.
func (s *Session) Players() []PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersCopyLocked()
}

// SelectWord transitions waiting -> playing. Only the current drawer may call
// it, and only with one of the offered options.
func (s *Session) SelectWord(userID uuid.UUID, word string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return ErrWrongState
	}
	drawer := s.drawerLocked()
	if drawer == nil || drawer.UserID != userID {
		return ErrNotCurrentDrawer
	}
	if !lo.Contains(s.wordOptions, word) {
		return ErrInvalidWord
	}
	s.startRoundLocked(word)
	return nil
}

// Guess evaluates text against the secret word, scoring by elapsed time. The
// drawer's own guesses are always rejected; a player scores at most once per
// round. When every non-drawer has scored, the round ends immediately.
func (s *Session) Guess(userID uuid.UUID, text string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusPlaying {
		return false, ErrWrongState
	}
	player := s.playerLocked(userID)
	if player == nil {
		return false, ErrNotPlayer
	}

	if player.IsDrawing {
		// Rejected silently; broadcasting the drawer's text could leak the
		// word to the guessers.
		return false, nil
	}
	if !MatchesWord(text, s.currentWord) {
		s.broadcast(Event{Type: EventGameGuess, Payload: GuessPayload{UserID: userID, Text: text}})
		return false, nil
	}
	if s.hasGuessedLocked(userID) {
		return false, ErrAlreadyGuessed
	}

	taken := elapsedMs(s.roundStartedAt)
	points := s.cfg.GuessTable.Award(time.Since(s.roundStartedAt))
	player.Score += points
	player.CorrectGuessCount++
	s.correct = append(s.correct, GuessRecord{UserID: userID, TimeTakenMs: taken, Word: s.currentWord})

	s.broadcast(Event{Type: EventGameCorrectGuess, Payload: CorrectGuessPayload{
		UserID:      userID,
		TimeTakenMs: taken,
		Points:      points,
	}})

	if len(s.correct) >= len(s.players)-1 {
		// Every non-drawer has scored; no reason to wait for the clock.
		s.endRoundLocked(ReasonAllGuessed, drawerFinishBonus*len(s.correct))
	}
	return true, nil
}

// EarlySubmit lets the drawer hand in the drawing before the clock expires.
// The round clock is canceled immediately; the oracle is consulted without the
// session lock held, and its verdict is applied only if the round is still the
// same generation when it returns.
func (s *Session) EarlySubmit(userID uuid.UUID, image []byte) error {
	s.mu.Lock()

	if s.status != StatusPlaying {
		s.mu.Unlock()
		return ErrWrongState
	}
	drawer := s.drawerLocked()
	if drawer == nil || drawer.UserID != userID {
		s.mu.Unlock()
		return ErrNotCurrentDrawer
	}

	s.clock.Cancel()
	gen := s.clock.Generation()
	word := s.currentWord
	elapsed := time.Since(s.roundStartedAt)
	seed := submissionSeed(s.ID, s.currentRound)
	s.mu.Unlock()

	go s.resolveSubmission(gen, word, elapsed, image, seed)
	return nil
}

// resolveSubmission performs the oracle round trip and applies the verdict.
func (s *Session) resolveSubmission(gen uint64, word string, elapsed time.Duration, image []byte, seed int64) {
	labels, authoritative, err := s.classifier.Classify(context.Background(), image, word, seed)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The round may have meanwhile ended (drawer left, session ended); a
	// stale verdict must be discarded.
	if !s.clock.Valid(gen) || s.status != StatusPlaying {
		return
	}

	drawer := s.drawerLocked()
	if drawer == nil {
		return
	}

	points := 0
	if err == nil && len(labels) > 0 && MatchesWord(labels[0].Label, word) {
		points = s.cfg.DrawerTable.Award(elapsed)
		if !authoritative {
			// A fallback ranking is not trustworthy enough for a fast-tier
			// award; the floor keeps the game moving without inflating scores.
			points = s.cfg.DrawerTable[len(s.cfg.DrawerTable)-1].Points
		}
	}
	drawer.Score += points

	s.sendTo(drawer.UserID, Event{Type: EventGamePrediction, Payload: PredictionPayload{
		Labels:   labels,
		Fallback: !authoritative,
	}})
	s.endRoundLocked(ReasonEarlySubmit, points)
}

// SubmitPreview forwards a mid-round drawing snapshot to the oracle and
// relays the ranking to the drawer only. No scoring happens here.
func (s *Session) SubmitPreview(userID uuid.UUID, image []byte) error {
	s.mu.Lock()

	if s.status != StatusPlaying {
		s.mu.Unlock()
		return ErrWrongState
	}
	drawer := s.drawerLocked()
	if drawer == nil || drawer.UserID != userID {
		s.mu.Unlock()
		return ErrNotCurrentDrawer
	}

	gen := s.clock.Generation()
	word := s.currentWord
	seed := submissionSeed(s.ID, s.currentRound)
	s.mu.Unlock()

	go func() {
		labels, authoritative, err := s.classifier.Classify(context.Background(), image, word, seed)
		if err != nil && len(labels) == 0 {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.clock.Valid(gen) || s.status != StatusPlaying {
			return
		}
		s.sendTo(userID, Event{Type: EventGamePrediction, Payload: PredictionPayload{
			Labels:   labels,
			Fallback: !authoritative,
		}})
	}()
	return nil
}

// RequestNextTurn advances out of round_end before the grace delay elapses.
// Host privilege is enforced by the boundary layer.
func (s *Session) RequestNextTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusRoundEnd {
		return ErrWrongState
	}
	s.advanceTurnLocked()
	return nil
}

// End terminates the session immediately. Host privilege is enforced by the
// boundary layer.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusFinished {
		return
	}
	s.finishLocked()
}

// HandleDisconnect removes a departing member from the session. A departing
// drawer force-ends the round with the word revealed and a zero drawer score;
// if fewer than two players remain the session terminates.
func (s *Session) HandleDisconnect(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusFinished {
		return
	}
	player := s.playerLocked(userID)
	if player == nil {
		return
	}
	wasDrawing := player.IsDrawing

	s.players = lo.Filter(s.players, func(p *PlayerState, _ int) bool {
		return p.UserID != userID
	})
	s.correct = lo.Filter(s.correct, func(g GuessRecord, _ int) bool {
		return g.UserID != userID
	})

	if len(s.players) < 2 {
		s.finishLocked()
		return
	}

	switch {
	case wasDrawing && s.status == StatusPlaying:
		s.endRoundLocked(ReasonDrawerLeft, 0)
	case wasDrawing && s.status == StatusWaiting:
		// Drawer left before choosing; hand the turn to the next eligible player.
		s.advanceTurnLocked()
	case s.status == StatusPlaying && len(s.correct) >= len(s.players)-1 && len(s.correct) > 0:
		// The departure may have made the remaining guessers unanimous.
		s.endRoundLocked(ReasonAllGuessed, drawerFinishBonus*len(s.correct))
	}
}

// Snapshot builds the redacted session view for one member. Secrets are
// withheld from non-drawers and timeRemaining is derived from the running
// clock, so reconnecting never grants a fresh duration.
func (s *Session) Snapshot(forUser uuid.UUID) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:    s.ID,
		Status:       s.status,
		CurrentRound: s.currentRound,
		TotalRounds:  s.cfg.TotalRounds,
		TimeLimit:    int(s.cfg.RoundTime.Seconds()),
		Players:      s.playersCopyLocked(),
	}
	drawer := s.drawerLocked()
	if drawer != nil {
		snap.DrawerID = drawer.UserID
	}

	isDrawer := drawer != nil && drawer.UserID == forUser
	switch s.status {
	case StatusWaiting:
		if isDrawer {
			snap.WordOptions = append([]string(nil), s.wordOptions...)
		}
	case StatusPlaying:
		if isDrawer {
			snap.Word = s.currentWord
		} else {
			snap.WordHint = MaskWord(s.currentWord)
		}
		snap.TimeRemaining = s.clock.Remaining().Seconds()
	}
	return snap
}

// --- internals; every *Locked method assumes s.mu is held ---

func (s *Session) drawerLocked() *PlayerState {
	for _, p := range s.players {
		if p.IsDrawing {
			return p
		}
	}
	return nil
}

func (s *Session) playerLocked(userID uuid.UUID) *PlayerState {
	for _, p := range s.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (s *Session) hasGuessedLocked(userID uuid.UUID) bool {
	return lo.ContainsBy(s.correct, func(g GuessRecord) bool { return g.UserID == userID })
}

func (s *Session) playersCopyLocked() []PlayerState {
	return lo.Map(s.players, func(p *PlayerState, _ int) PlayerState { return *p })
}

// openTurnLocked puts the session in waiting with fresh word options for the
// given drawer and arms the choose timeout.
func (s *Session) openTurnLocked(drawer *PlayerState) {
	s.status = StatusWaiting
	s.currentWord = ""
	s.correct = nil
	s.wordOptions = s.cfg.Words.Pick(s.cfg.WordOptions)

	s.sendTo(drawer.UserID, Event{Type: EventGameWordOptions, Payload: WordOptionsPayload{
		Options: append([]string(nil), s.wordOptions...),
	}})

	s.clock.Schedule(s.cfg.ChooseTime, func(gen uint64) {
		s.onChooseExpired(gen)
	})
}

// onChooseExpired force-starts the round with the first offered word when the
// drawer never chose.
func (s *Session) onChooseExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.clock.Valid(gen) || s.status != StatusWaiting || len(s.wordOptions) == 0 {
		return
	}
	s.startRoundLocked(s.wordOptions[0])
}

func (s *Session) startRoundLocked(word string) {
	drawer := s.drawerLocked()

	s.status = StatusPlaying
	s.currentWord = word
	s.wordOptions = nil
	s.correct = nil
	s.roundStartedAt = time.Now()

	started := StartedPayload{
		Round:     s.currentRound,
		DrawerID:  drawer.UserID,
		TimeLimit: int(s.cfg.RoundTime.Seconds()),
	}
	withWord := started
	withWord.Word = word
	s.sendTo(drawer.UserID, Event{Type: EventGameStarted, Payload: withWord})

	hint := Event{Type: EventGameWordHint, Payload: WordHintPayload{
		Mask:   MaskWord(word),
		Length: len([]rune(word)),
	}}
	for _, p := range s.players {
		if !p.IsDrawing {
			s.sendTo(p.UserID, Event{Type: EventGameStarted, Payload: started})
			s.sendTo(p.UserID, hint)
		}
	}

	s.clock.Schedule(s.cfg.RoundTime, func(gen uint64) {
		s.onRoundExpired(gen)
	})
}

// onRoundExpired is the RoundClock callback for the playing state: a timeout
// is a zero-score outcome for the drawer.
func (s *Session) onRoundExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.clock.Valid(gen) || s.status != StatusPlaying {
		return
	}
	s.broadcast(Event{Type: EventGameTimeout})
	s.endRoundLocked(ReasonTimeout, 0)
}

func (s *Session) endRoundLocked(reason string, drawerPoints int) {
	drawer := s.drawerLocked()
	drawerID := uuid.Nil
	if drawer != nil {
		drawerID = drawer.UserID
		if reason == ReasonAllGuessed && drawerPoints > 0 {
			drawer.Score += drawerPoints
		}
		// Nobody draws during round_end. The turn still counts as taken so
		// the rotation skips this player until the round boundary.
		drawer.IsDrawing = false
		drawer.HasPlayedThisRound = true
	}

	s.status = StatusRoundEnd
	payload := RoundEndPayload{
		Round:        s.currentRound,
		Word:         s.currentWord,
		Reason:       reason,
		DrawerID:     drawerID,
		DrawerPoints: drawerPoints,
		Players:      s.playersCopyLocked(),
	}
	s.broadcast(Event{Type: EventGameRoundEnd, Payload: payload})
	s.record("round_end", map[string]any{
		"round":  s.currentRound,
		"word":   s.currentWord,
		"reason": reason,
	})

	s.clock.Schedule(s.cfg.GraceDelay, func(gen uint64) {
		s.onGraceExpired(gen)
	})
}

func (s *Session) onGraceExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.clock.Valid(gen) || s.status != StatusRoundEnd {
		return
	}
	s.advanceTurnLocked()
}

// advanceTurnLocked rotates the drawer. A player is eligible only if they have
// not yet drawn this round; the round counter increments only once everyone
// has drawn, and the eligibility flags reset at that boundary.
func (s *Session) advanceTurnLocked() {
	if len(s.players) < 2 {
		s.finishLocked()
		return
	}

	if current := s.drawerLocked(); current != nil {
		current.IsDrawing = false
		current.HasPlayedThisRound = true
	}

	next := s.nextEligibleLocked()
	if next == nil {
		for _, p := range s.players {
			p.HasPlayedThisRound = false
		}
		s.currentRound++
		if s.currentRound > s.cfg.TotalRounds {
			s.finishLocked()
			return
		}
		next = s.nextEligibleLocked()
		if next == nil {
			s.finishLocked()
			return
		}
	}

	next.IsDrawing = true
	s.broadcast(Event{Type: EventGameNextTurn, Payload: NextTurnPayload{
		Round:    s.currentRound,
		DrawerID: next.UserID,
	}})
	s.openTurnLocked(next)
}

func (s *Session) nextEligibleLocked() *PlayerState {
	for _, p := range s.players {
		if !p.HasPlayedThisRound {
			return p
		}
	}
	return nil
}

// finishLocked is the terminal transition. The clock is canceled so neither a
// round expiry nor a grace advance can fire afterwards.
func (s *Session) finishLocked() {
	s.clock.Cancel()
	s.status = StatusFinished
	s.currentWord = ""
	s.wordOptions = nil
	for _, p := range s.players {
		p.IsDrawing = false
	}

	players := s.playersCopyLocked()
	maxScore := 0
	for _, p := range players {
		if p.Score > maxScore {
			maxScore = p.Score
		}
	}
	winners := lo.FilterMap(players, func(p PlayerState, _ int) (uuid.UUID, bool) {
		return p.UserID, p.Score == maxScore
	})

	s.broadcast(Event{Type: EventGameFinished, Payload: FinishedPayload{
		Players: players,
		Winners: winners,
	}})
	s.record("game_end", map[string]any{
		"rounds":  s.currentRound,
		"players": len(players),
	})

	if s.OnFinished != nil {
		// Run on its own goroutine: the callback locks the owning room, and
		// lock order is always room before session.
		go s.OnFinished(s)
	}
}

func (s *Session) broadcast(ev Event) {
	if s.BroadcastFn != nil {
		s.BroadcastFn(ev)
	}
}

func (s *Session) sendTo(userID uuid.UUID, ev Event) {
	if s.SendToFn != nil {
		s.SendToFn(userID, ev)
	}
}

func (s *Session) record(kind string, payload map[string]any) {
	if s.recorder == nil {
		return
	}
	go s.recorder.Record(kind, s.ID, payload)
}

// submissionSeed derives a stable per-round seed so repeated oracle failures
// within the same round produce the same fallback ranking.
func submissionSeed(sessionID uuid.UUID, round int) int64 {
	var seed int64
	for _, b := range sessionID[:8] {
		seed = seed<<8 | int64(b)
	}
	return seed ^ int64(round)
}
