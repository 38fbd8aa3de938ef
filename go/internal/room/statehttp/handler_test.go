package statehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
	"github.com/mcdev12/singalong/go/internal/room/reconcile"
	"github.com/mcdev12/singalong/go/internal/room/session"
)

type stubRoom struct {
	snapshot session.Snapshot
	intents  []session.Intent
	result   json.RawMessage
	err      error
}

func (r *stubRoom) Snapshot() session.Snapshot { return r.snapshot }

func (r *stubRoom) Perform(_ context.Context, intent session.Intent) (json.RawMessage, error) {
	r.intents = append(r.intents, intent)
	return r.result, r.err
}

func newStubRoom(connected bool) *stubRoom {
	state := reconcile.NewState(protocol.RoleController)
	state.Connected = connected
	state.RoomID = "demo-room"
	state.Queue = &protocol.Queue{Items: []protocol.QueueItem{{ID: "i1", Entry: protocol.Entry{ID: "A"}}}, Version: 2}
	return &stubRoom{snapshot: session.Snapshot{State: state, Phase: "handshaken", UpNext: *state.Queue}}
}

func serve(t *testing.T, room Room, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	server := NewServer(":0", room, []string{"http://display.local"})
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, newStubRoom(true), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":true,"joined":false,"phase":"handshaken"}`, rec.Body.String())

	rec = serve(t, newStubRoom(false), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetState(t *testing.T) {
	rec := serve(t, newStubRoom(true), httptest.NewRequest(http.MethodGet, "/api/room/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "demo-room", got["room_id"])
	assert.Equal(t, "controller", got["role"])
	assert.Contains(t, got, "up_next")

	rec = serve(t, newStubRoom(true), httptest.NewRequest(http.MethodPost, "/api/room/state", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPostIntent(t *testing.T) {
	room := newStubRoom(true)
	room.result = json.RawMessage(`{"position":1}`)

	body := strings.NewReader(`{"command":"remove_song","payload":{"entry_id":"i1"}}`)
	rec := serve(t, room, httptest.NewRequest(http.MethodPost, "/api/room/intents", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"result":{"position":1}}`, rec.Body.String())
	require.Len(t, room.intents, 1)
	assert.Equal(t, protocol.CmdRemoveSong, room.intents[0].Command)
}

func TestPostIntent_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body", `not json`, nil, http.StatusBadRequest},
		{"unknown intent", `{"command":"dance"}`, session.ErrUnknownIntent, http.StatusBadRequest},
		{"timeout", `{"command":"play_song"}`, session.ErrAckTimeout, http.StatusGatewayTimeout},
		{"rejected", `{"command":"play_song"}`, &session.CommandError{Command: protocol.CmdPlaySong, Message: "not leader"}, http.StatusConflict},
		{"connection lost", `{"command":"play_song"}`, session.ErrConnectionLost, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := newStubRoom(true)
			room.err = tt.err

			rec := serve(t, room, httptest.NewRequest(http.MethodPost, "/api/room/intents", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)

			var detail map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
			assert.NotEmpty(t, detail["detail"])
		})
	}
}

func TestCORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/room/state", nil)
	req.Header.Set("Origin", "http://display.local")
	rec := serve(t, newStubRoom(true), req)
	assert.Equal(t, "http://display.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/room/state", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = serve(t, newStubRoom(true), req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
