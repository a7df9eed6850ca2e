// internal/handlers/room_server.go
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sketchdash/sketchdash/internal/config"
	"github.com/sketchdash/sketchdash/internal/game"
	"github.com/sketchdash/sketchdash/internal/predict"
	"github.com/sketchdash/sketchdash/internal/room"
)

// RoomServer is the high-level struct tying the room registry to the
// transport: it tracks live WebSocket connections per room and owns the
// shared oracle gateway, word bank and result recorder.
type RoomServer struct {
	Registry *room.Registry
	Gateway  *predict.Gateway
	Recorder game.Recorder
	Words    *game.WordBank
	Cfg      config.Server
	Logger   *logrus.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]map[uuid.UUID]*websocket.Conn // roomID -> userID -> conn
}

// NewRoomServer wires the server's shared state. recorder may be nil when no
// Redis is available; sessions then simply skip result publishing.
func NewRoomServer(cfg config.Server, gw *predict.Gateway, recorder game.Recorder, words *game.WordBank, logger *logrus.Logger) *RoomServer {
	if logger == nil {
		logger = logrus.New()
	}
	if words == nil {
		words = game.NewWordBank()
	}
	return &RoomServer{
		Registry: room.NewRegistry(logger),
		Gateway:  gw,
		Recorder: recorder,
		Words:    words,
		Cfg:      cfg,
		Logger:   logger,
	}
}

// register records a user's live connection, replacing any previous one for
// the same user (a reconnect supersedes the old socket).
func (rs *RoomServer) register(roomID, userID uuid.UUID, c *websocket.Conn) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.conns == nil {
		rs.conns = make(map[uuid.UUID]map[uuid.UUID]*websocket.Conn)
	}
	if rs.conns[roomID] == nil {
		rs.conns[roomID] = make(map[uuid.UUID]*websocket.Conn)
	}
	if old, ok := rs.conns[roomID][userID]; ok && old != c {
		old.Close(websocket.StatusPolicyViolation, "superseded by a newer connection")
	}
	rs.conns[roomID][userID] = c
}

// unregister drops a user's connection. It is a no-op when a newer connection
// has already replaced c.
func (rs *RoomServer) unregister(roomID, userID uuid.UUID, c *websocket.Conn) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	current, ok := rs.conns[roomID][userID]
	if !ok || current != c {
		return false
	}
	delete(rs.conns[roomID], userID)
	if len(rs.conns[roomID]) == 0 {
		delete(rs.conns, roomID)
	}
	return true
}

// createBroadcastFunc returns a function suitable for Room.BroadcastFn. It
// snapshots the current connections, then marshals and sends asynchronously
// so callers holding Room.Mu are never blocked on a slow socket.
func (rs *RoomServer) createBroadcastFunc(roomID uuid.UUID) func(ev game.Event) {
	return func(ev game.Event) {
		rs.mu.Lock()
		targets := make([]*websocket.Conn, 0, len(rs.conns[roomID]))
		for _, c := range rs.conns[roomID] {
			targets = append(targets, c)
		}
		rs.mu.Unlock()

		data, err := json.Marshal(ev)
		if err != nil {
			rs.Logger.Errorf("Failed to marshal broadcast event (%s) for room %s: %v", ev.Type, roomID, err)
			return
		}

		go func() {
			for _, c := range targets {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				if err := c.Write(ctx, websocket.MessageText, data); err != nil {
					rs.Logger.Warnf("Failed to write broadcast message in room %s: %v", roomID, err)
				}
				cancel()
			}
		}()
	}
}

// createSendToFunc returns a function suitable for Room.SendToFn, targeting a
// single member's connection.
func (rs *RoomServer) createSendToFunc(roomID uuid.UUID) func(userID uuid.UUID, ev game.Event) {
	return func(userID uuid.UUID, ev game.Event) {
		rs.mu.Lock()
		c := rs.conns[roomID][userID]
		rs.mu.Unlock()
		if c == nil {
			return
		}

		data, err := json.Marshal(ev)
		if err != nil {
			rs.Logger.Errorf("Failed to marshal private event (%s) for user %s in room %s: %v", ev.Type, userID, roomID, err)
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := c.Write(ctx, websocket.MessageText, data); err != nil {
				rs.Logger.Warnf("Failed to write private message to user %s in room %s: %v", userID, roomID, err)
			}
		}()
	}
}

// sessionConfig assembles the game configuration for a new session. Overrides
// from the start message win over the configured defaults within sane bounds.
func (rs *RoomServer) sessionConfig(rounds, timeLimitSec int) game.Config {
	cfg := game.Config{
		TotalRounds: rs.Cfg.TotalRounds,
		RoundTime:   rs.Cfg.RoundTime,
		ChooseTime:  rs.Cfg.ChooseTime,
		GraceDelay:  rs.Cfg.GraceDelay,
		Words:       rs.Words,
	}
	if rounds > 0 && rounds <= 10 {
		cfg.TotalRounds = rounds
	}
	if timeLimitSec >= 15 && timeLimitSec <= 300 {
		cfg.RoundTime = time.Duration(timeLimitSec) * time.Second
	}
	return cfg
}

// classifier adapts the predict gateway to the game's Classifier interface.
type classifier struct {
	gw *predict.Gateway
}

func (ca classifier) Classify(ctx context.Context, image []byte, hint string, seed int64) ([]game.RankedLabel, bool, error) {
	res, err := ca.gw.Classify(ctx, image, hint, seed)
	if err != nil {
		return nil, false, err
	}
	labels := make([]game.RankedLabel, len(res.Labels))
	for i, p := range res.Labels {
		labels[i] = game.RankedLabel{Label: p.Label, Confidence: p.Confidence}
	}
	return labels, !res.Fallback, nil
}
