// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sketchdash/sketchdash/internal/canvas"
	"github.com/sketchdash/sketchdash/internal/game"
	"github.com/sketchdash/sketchdash/internal/middleware"
	"github.com/sketchdash/sketchdash/internal/room"
)

// maxImageBytes caps a decoded submission image.
const maxImageBytes = 1 << 20

// RoomWSHandler upgrades the HTTP connection to WebSocket for a specific
// room. It authenticates the guest, joins them to the room, wires the room's
// broadcast functions on first use, sends the full state sync, and then runs
// the read loop until the client disconnects.
func RoomWSHandler(logger *logrus.Logger, rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codeOrID := mux.Vars(r)["codeOrID"]
		if codeOrID == "" {
			http.Error(w, "Missing room code in path (/rooms/ws/{codeOrID})", http.StatusBadRequest)
			return
		}

		rm, err := rs.Registry.Resolve(codeOrID)
		if err != nil {
			switch {
			case errors.Is(err, room.ErrInvalidAccessCode):
				http.Error(w, "Invalid access code", http.StatusBadRequest)
			default:
				http.Error(w, "Room not found", http.StatusNotFound)
			}
			return
		}

		// Authenticate before the upgrade so the token cookie can still be set.
		guest, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("Guest authentication failed for room %s: %v", rm.ID, err)
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"room"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for room %s: %v", rm.ID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		// Wire the room's fan-out once, before the first member event fires.
		rm.Mu.Lock()
		if rm.BroadcastFn == nil {
			rm.BroadcastFn = rs.createBroadcastFunc(rm.ID)
			rm.SendToFn = rs.createSendToFunc(rm.ID)
		}
		rm.Mu.Unlock()

		rs.register(rm.ID, guest.ID, c)

		if err := rm.Join(guest.ID, guest.DisplayName); err != nil {
			rs.unregister(rm.ID, guest.ID, c)
			c.Close(websocket.StatusPolicyViolation, "A game is in progress; try again later.")
			return
		}
		logger.Infof("User %s (%s) joined room %s", guest.ID, guest.DisplayName, rm.ID)

		// Full state sync: members, strokes and the redacted session view.
		sendWsMessage(c, game.Event{
			Type:    game.EventGameSessionSync,
			Payload: rm.State(guest.ID),
		})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readRoomMessages(ctx, c, rs, rm, guest.ID, logger)

		// Leave only if this connection is still the user's current one; a
		// reconnect that superseded it keeps the membership alive.
		if rs.unregister(rm.ID, guest.ID, c) {
			rm.Leave(guest.ID)
			logger.Infof("User %s left room %s", guest.ID, rm.ID)
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// readRoomMessages continuously reads messages from a client's WebSocket
// connection, validates them, and routes them to the room and session logic.
// Draw traffic is rate limited per connection.
func readRoomMessages(ctx context.Context, c *websocket.Conn, rs *RoomServer, rm *room.Room, userID uuid.UUID, logger *logrus.Logger) {
	drawLimiter := rate.NewLimiter(rate.Limit(rs.Cfg.DrawRatePerSec), rs.Cfg.DrawBurst)

	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for user %s in room %s.", userID, rm.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for user %s in room %s.", userID, rm.ID)
			} else {
				logger.Warnf("Error reading from WebSocket for user %s in room %s: %v (Status: %d)", userID, rm.ID, err, status)
			}
			return
		}

		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message type %d from user %s in room %s. Ignoring.", msgType, userID, rm.ID)
			continue
		}

		var msg RoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON received from user %s in room %s: %v", userID, rm.ID, err)
			sendWsError(c, "Invalid JSON format.")
			continue
		}

		if err := handleRoomMessage(rs, rm, userID, msg, drawLimiter, c); err != nil {
			sendWsError(c, err.Error())
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleRoomMessage routes one inbound message. The returned error is
// relayed to the sender verbatim.
func handleRoomMessage(rs *RoomServer, rm *room.Room, userID uuid.UUID, msg RoomMessage, drawLimiter *rate.Limiter, c *websocket.Conn) error {
	switch msg.Type {
	case "draw_stroke":
		if !drawLimiter.Allow() {
			return errors.New("drawing too fast; slow down")
		}
		if msg.Stroke == nil {
			return errors.New("draw_stroke requires a stroke")
		}
		stroke, err := msg.Stroke.toStroke()
		if err != nil {
			return err
		}
		if err := requireCanDraw(rm, userID); err != nil {
			return err
		}
		stroke.UserID = userID
		broadcastDelta(rm, rm.Canvas.Append(stroke))
		return nil

	case "undo":
		if err := requireCanDraw(rm, userID); err != nil {
			return err
		}
		if delta, ok := rm.Canvas.Undo(userID); ok {
			broadcastDelta(rm, delta)
		}
		return nil

	case "redo":
		if err := requireCanDraw(rm, userID); err != nil {
			return err
		}
		if delta, ok := rm.Canvas.Redo(userID); ok {
			broadcastDelta(rm, delta)
		}
		return nil

	case "clear_canvas":
		return rm.ClearCanvas(userID)

	case "cursor":
		rm.UpdateCursor(userID, msg.X, msg.Y)
		return nil

	case "game_start":
		s, err := rm.StartSession(userID, rs.sessionConfig(msg.Rounds, msg.TimeLimit), classifier{gw: rs.Gateway})
		if err != nil {
			return err
		}
		if rs.Recorder != nil {
			s.SetRecorder(rs.Recorder)
		}
		return nil

	case "game_select_word":
		s := currentSession(rm)
		if s == nil {
			return errors.New("no game in progress")
		}
		return s.SelectWord(userID, msg.Word)

	case "game_guess":
		if strings.TrimSpace(msg.Text) == "" {
			return errors.New("empty guess")
		}
		s := currentSession(rm)
		if s == nil {
			return errors.New("no game in progress")
		}
		_, err := s.Guess(userID, msg.Text)
		return err

	case "game_submit":
		s := currentSession(rm)
		if s == nil {
			return errors.New("no game in progress")
		}
		image, err := decodeImage(msg.Image)
		if err != nil {
			return err
		}
		if msg.Final {
			return s.EarlySubmit(userID, image)
		}
		return s.SubmitPreview(userID, image)

	case "game_next_turn":
		return rm.RequestNextTurn(userID)

	case "game_end":
		return rm.EndSession(userID)

	case "ping":
		sendWsMessage(c, map[string]string{"type": "pong"})
		return nil

	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// requireCanDraw enforces drawing privilege: during an active round only the
// drawer may mutate the canvas, otherwise any member may.
func requireCanDraw(rm *room.Room, userID uuid.UUID) error {
	if !rm.IsMember(userID) {
		return game.ErrNotPlayer
	}
	s := currentSession(rm)
	if s != nil && s.Status() == game.StatusPlaying && s.DrawerID() != userID {
		return game.ErrNotCurrentDrawer
	}
	return nil
}

func currentSession(rm *room.Room) *game.Session {
	rm.Mu.Lock()
	defer rm.Mu.Unlock()
	return rm.Session
}

func broadcastDelta(rm *room.Room, delta canvas.Delta) {
	rm.Mu.Lock()
	broadcast := rm.BroadcastFn
	roomID := rm.ID
	rm.Mu.Unlock()
	if broadcast == nil {
		return
	}
	broadcast(game.Event{Type: game.EventCanvasDelta, Payload: game.CanvasDeltaPayload{
		RoomID: roomID,
		Delta:  delta,
	}})
}

// decodeImage decodes and bounds a base64 PNG submission.
func decodeImage(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, errors.New("game_submit requires an image")
	}
	// Tolerate a data-URL prefix from canvas.toDataURL().
	if idx := strings.Index(encoded, ","); idx != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid image encoding: %w", err)
	}
	if len(image) > maxImageBytes {
		return nil, errors.New("image too large")
	}
	return image, nil
}

// sendWsMessage marshals a message and sends it to the WebSocket client.
// Includes logging for errors and uses a write timeout.
func sendWsMessage(c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			log.Printf("Error writing WebSocket message: %v (Status: %d)", err, status)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(c *websocket.Conn, errorMsg string) {
	sendWsMessage(c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
