package registry_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/mcdev12/singalong/go/clients"
	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

type Room struct {
	ID               string  `json:"id"`
	IsPublic         bool    `json:"is_public"`
	RequiresPassword bool    `json:"requires_password"`
	ClientCount      int     `json:"client_count"`
	CreatedAt        float64 `json:"created_at"`
}

type RoomsResponse struct {
	Rooms []Room `json:"rooms"`
}

type CreateRoomRequest struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password,omitempty"`
	IsPublic bool   `json:"is_public"`
}

type CreateRoomResponse struct {
	Success bool   `json:"success"`
	RoomID  string `json:"room_id"`
	Message string `json:"message,omitempty"`
}

type VerifyRoomRequest struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password,omitempty"`
}

type VerifyRoomResponse struct {
	Success *bool  `json:"success,omitempty"`
	RoomID  string `json:"room_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type HeartbeatResponse struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

// VerifyRoom checks that password grants access to roomID. Password
// failures are reported as protocol.ErrPasswordRequired or
// protocol.ErrInvalidPassword.
func (c *RegistryClient) VerifyRoom(ctx context.Context, roomID, password string) error {
	body, err := c.PostJSON(ctx, VerifyRoomEndpoint, VerifyRoomRequest{RoomID: roomID, Password: password})
	if err != nil {
		var apiErr *clients.APIError
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			return fmt.Errorf("failed to verify room %s: %w", roomID, protocol.ClassifyRoomError(apiErr.Detail))
		}
		return fmt.Errorf("failed to verify room %s: %w", roomID, err)
	}

	var response VerifyRoomResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &response); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
		}
	}
	if response.Success != nil && !*response.Success {
		return fmt.Errorf("failed to verify room %s: %w", roomID, protocol.ClassifyRoomError(response.Message))
	}

	return nil
}

func (c *RegistryClient) ListRooms(ctx context.Context) ([]Room, error) {
	body, err := c.Get(ctx, RoomsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	var response RoomsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return response.Rooms, nil
}

func (c *RegistryClient) CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error) {
	body, err := c.PostJSON(ctx, CreateRoomEndpoint, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create room %s: %w", request.RoomID, err)
	}

	var response CreateRoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return &response, nil
}

func (c *RegistryClient) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	body, err := c.Get(ctx, RoomsEndpoint+"/"+url.PathEscape(roomID))
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", roomID, err)
	}

	var room Room
	if err := json.Unmarshal(body, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return &room, nil
}

func (c *RegistryClient) Heartbeat(ctx context.Context) (*HeartbeatResponse, error) {
	body, err := c.Get(ctx, HeartbeatEndpoint)
	if err != nil {
		return nil, fmt.Errorf("heartbeat failed: %w", err)
	}

	var response HeartbeatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return &response, nil
}
