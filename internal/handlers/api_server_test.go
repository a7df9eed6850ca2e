// internal/handlers/api_server_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchdash/sketchdash/internal/auth"
	"github.com/sketchdash/sketchdash/internal/config"
	"github.com/sketchdash/sketchdash/internal/predict"
	"github.com/sketchdash/sketchdash/internal/room"
)

func newTestServer(t *testing.T) (*httptest.Server, *RoomServer) {
	t.Helper()
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	// Oracle base URL points nowhere; tests never reach it.
	gw := predict.NewGateway(predict.Config{
		BaseURL:        "http://127.0.0.1:0",
		AttemptTimeout: 50 * time.Millisecond,
		MaxAttempts:    1,
	}, nil, logger)

	rs := NewRoomServer(config.Server{
		TotalRounds:    1,
		RoundTime:      time.Minute,
		ChooseTime:     time.Minute,
		GraceDelay:     time.Minute,
		DrawRatePerSec: 100,
		DrawBurst:      100,
		AllowOrigins:   []string{"*"},
	}, gw, nil, nil, logger)

	srv := httptest.NewServer(NewRouter(logger, rs))
	t.Cleanup(srv.Close)
	return srv, rs
}

func createRoomViaAPI(t *testing.T, srv *httptest.Server, body string) createRoomResponse {
	t.Helper()
	resp, err := http.Post(srv.URL+"/rooms", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created createRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateRoomReturnsAccessCode(t *testing.T) {
	srv, rs := newTestServer(t)

	created := createRoomViaAPI(t, srv, `{"name":"doodles","visibility":"private"}`)
	assert.NotEmpty(t, created.RoomID)
	assert.True(t, room.ValidCodeShape(created.AccessCode))
	assert.Equal(t, "private", created.Visibility)
	assert.Equal(t, 1, rs.Registry.Len())
}

func TestCreateRoomRejectsBadBodies(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, body := range []string{"", "{", `{"visibility":"private"}`, `{"name":"x","visibility":"secret"}`} {
		resp, err := http.Post(srv.URL+"/rooms", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
	}
}

func TestListRoomsShowsOnlyPublic(t *testing.T) {
	srv, _ := newTestServer(t)

	createRoomViaAPI(t, srv, `{"name":"open","visibility":"public"}`)
	createRoomViaAPI(t, srv, `{"name":"hidden","visibility":"private"}`)

	resp, err := http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []room.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "open", list[0].Name)
}

func TestGetRoomByCodeOmitsAccessCode(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createRoomViaAPI(t, srv, `{"name":"doodles"}`)

	resp, err := http.Get(srv.URL + "/rooms/" + created.AccessCode)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var peek map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&peek))
	assert.Equal(t, created.RoomID, peek["roomId"])
	assert.NotContains(t, peek, "accessCode")
}

func TestGetRoomErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/rooms/short")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Right shape, never issued.
	resp, err = http.Get(srv.URL + "/rooms/234567")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
