package registry_client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/singalong/go/clients"
	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

func newRegistry(t *testing.T, handler http.HandlerFunc) *RegistryClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRegistryClient(server.URL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestVerifyRoom(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		wantErr error
	}{
		{"ok", http.StatusOK, map[string]any{"success": true, "room_id": "demo-room"}, nil},
		{"empty body", http.StatusOK, nil, nil},
		{"password required", http.StatusUnauthorized, map[string]string{"detail": "Password required"}, protocol.ErrPasswordRequired},
		{"invalid password", http.StatusForbidden, map[string]string{"detail": "Invalid password"}, protocol.ErrInvalidPassword},
		{"soft failure", http.StatusOK, map[string]any{"success": false, "message": "Invalid password"}, protocol.ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requests := make(chan VerifyRoomRequest, 1)
			client := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, VerifyRoomEndpoint, r.URL.Path)
				assert.Equal(t, UserAgent, r.Header.Get(UserAgentHeader))

				var req VerifyRoomRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				requests <- req

				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, tt.body)
			})

			err := client.VerifyRoom(context.Background(), "demo-room", "hunter2")
			assert.Equal(t, VerifyRoomRequest{RoomID: "demo-room", Password: "hunter2"}, <-requests)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyRoom_NotFoundKeepsAPIError(t *testing.T) {
	client := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such room"))
	})

	err := client.VerifyRoom(context.Background(), "missing", "")
	var apiErr *clients.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "no such room", apiErr.Body)
	assert.NotErrorIs(t, err, protocol.ErrInvalidPassword)
}

func TestListRooms(t *testing.T) {
	client := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, RoomsEndpoint, r.URL.Path)
		writeJSON(w, http.StatusOK, RoomsResponse{Rooms: []Room{
			{ID: "demo-room", IsPublic: true, ClientCount: 3},
			{ID: "party", IsPublic: true},
		}})
	})

	rooms, err := client.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "demo-room", rooms[0].ID)
	assert.Equal(t, 3, rooms[0].ClientCount)
}

func TestCreateRoom(t *testing.T) {
	client := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CreateRoomEndpoint, r.URL.Path)

		var req CreateRoomRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.RoomID == "taken" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Room taken already exists"})
			return
		}
		writeJSON(w, http.StatusOK, CreateRoomResponse{Success: true, RoomID: req.RoomID})
	})

	resp, err := client.CreateRoom(context.Background(), CreateRoomRequest{RoomID: "new-room", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "new-room", resp.RoomID)

	_, err = client.CreateRoom(context.Background(), CreateRoomRequest{RoomID: "taken", IsPublic: true})
	var apiErr *clients.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Room taken already exists", apiErr.Detail)
}

func TestGetRoom(t *testing.T) {
	client := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms/demo-room", r.URL.Path)
		writeJSON(w, http.StatusOK, Room{ID: "demo-room", RequiresPassword: true})
	})

	room, err := client.GetRoom(context.Background(), "demo-room")
	require.NoError(t, err)
	assert.True(t, room.RequiresPassword)
}

func TestHeartbeat(t *testing.T) {
	client := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HeartbeatResponse{Status: "ok", Timestamp: 1700000000})
	})

	resp, err := client.Heartbeat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}
