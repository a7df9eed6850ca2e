// internal/handlers/api_server.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/sketchdash/sketchdash/internal/middleware"
	"github.com/sketchdash/sketchdash/internal/room"
)

// NewRouter assembles the HTTP surface: the room REST endpoints and the
// WebSocket upgrade route. The WebSocket route deliberately skips the logging
// middleware because its response writer wrapper hides the Hijacker the
// upgrade needs.
func NewRouter(logger *logrus.Logger, rs *RoomServer) http.Handler {
	r := mux.NewRouter()
	logged := middleware.LogMiddleware(logger)

	r.Handle("/health", logged(http.HandlerFunc(HealthHandler))).Methods(http.MethodGet)
	r.Handle("/rooms", logged(CreateRoomHandler(rs))).Methods(http.MethodPost)
	r.Handle("/rooms", logged(ListRoomsHandler(rs))).Methods(http.MethodGet)
	r.Handle("/rooms/{codeOrID}", logged(GetRoomHandler(rs))).Methods(http.MethodGet)
	r.HandleFunc("/rooms/ws/{codeOrID}", RoomWSHandler(logger, rs)).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   rs.Cfg.AllowOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateRoomHandler creates a room and returns its access code. The creator
// gets a guest identity cookie but does not become a member until they
// connect over WebSocket.
func CreateRoomHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(&req); err != nil {
			http.Error(w, "Invalid room request: "+err.Error(), http.StatusBadRequest)
			return
		}

		if _, err := EnsureEphemeralUser(w, r); err != nil {
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		rm, err := rs.Registry.CreateRoom(req.Name, room.Visibility(req.Visibility))
		if err != nil {
			if errors.Is(err, room.ErrCodeSpaceExhausted) {
				http.Error(w, "No access codes available; try again later", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "Failed to create room", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, createRoomResponse{
			RoomID:     rm.ID.String(),
			Name:       rm.Name,
			AccessCode: rm.AccessCode,
			Visibility: string(rm.Visibility),
		})
	}
}

// ListRoomsHandler returns the public room listing.
func ListRoomsHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rs.Registry.ListPublic())
	}
}

// GetRoomHandler lets a client peek at a room by ID or access code before
// connecting. The access code itself is never echoed back on this path.
func GetRoomHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := rs.Registry.Resolve(mux.Vars(r)["codeOrID"])
		if err != nil {
			switch {
			case errors.Is(err, room.ErrInvalidAccessCode):
				http.Error(w, "Invalid access code", http.StatusBadRequest)
			default:
				http.Error(w, "Room not found", http.StatusNotFound)
			}
			return
		}

		rm.Mu.Lock()
		resp := map[string]any{
			"roomId":      rm.ID.String(),
			"name":        rm.Name,
			"memberCount": len(rm.Members),
			"inGame":      rm.Session != nil,
		}
		rm.Mu.Unlock()
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
