// internal/handlers/messages.go
package handlers

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/sketchdash/sketchdash/internal/canvas"
)

// validate is the shared validator instance for inbound payloads.
var validate = validator.New()

// RoomMessage represents the structure for incoming WebSocket messages on a
// room connection. Type selects which optional fields are meaningful.
type RoomMessage struct {
	Type string `json:"type"`

	// Stroke carries a completed stroke for draw_stroke.
	Stroke *StrokePayload `json:"stroke,omitempty"`

	// Word is the drawer's pick for game_select_word.
	Word string `json:"word,omitempty"`

	// Text is the guess text for game_guess.
	Text string `json:"text,omitempty"`

	// Image is the base64-encoded PNG for game_submit.
	Image string `json:"image,omitempty"`

	// Final distinguishes an early submission (true) from a mid-round
	// prediction preview (false) on game_submit.
	Final bool `json:"final,omitempty"`

	// X and Y carry the pointer position for cursor messages.
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`

	// Rounds optionally overrides the configured round count on game_start.
	Rounds int `json:"rounds,omitempty"`

	// TimeLimit optionally overrides the configured round time on
	// game_start, in seconds.
	TimeLimit int `json:"timeLimit,omitempty"`
}

// StrokePayload is the wire form of one stroke. The server assigns the ID and
// the owner; clients cannot draw on someone else's behalf.
type StrokePayload struct {
	Tool   string         `json:"tool" validate:"required,oneof=pen eraser"`
	Color  string         `json:"color" validate:"required,hexcolor"`
	Width  float64        `json:"width" validate:"gt=0,lte=64"`
	Points []canvas.Point `json:"points" validate:"required,min=1,max=4096"`
}

// toStroke validates the payload and converts it to a canvas stroke.
func (sp *StrokePayload) toStroke() (canvas.Stroke, error) {
	if err := validate.Struct(sp); err != nil {
		return canvas.Stroke{}, fmt.Errorf("invalid stroke: %w", err)
	}
	return canvas.Stroke{
		Tool:   canvas.Tool(sp.Tool),
		Color:  sp.Color,
		Width:  sp.Width,
		Points: append([]canvas.Point(nil), sp.Points...),
	}, nil
}

// createRoomRequest is the JSON body for POST /rooms.
type createRoomRequest struct {
	Name       string `json:"name" validate:"required,max=64"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=public private"`
}

// createRoomResponse is the JSON reply for POST /rooms.
type createRoomResponse struct {
	RoomID     string `json:"roomId"`
	Name       string `json:"name"`
	AccessCode string `json:"accessCode"`
	Visibility string `json:"visibility"`
}
