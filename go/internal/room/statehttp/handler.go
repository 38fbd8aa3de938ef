package statehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/singalong/go/internal/room/session"
)

const maxIntentBytes = 64 << 10

// Room is the session surface served over HTTP
type Room interface {
	Snapshot() session.Snapshot
	Perform(ctx context.Context, intent session.Intent) (json.RawMessage, error)
}

// StateHandler serves the local presentation endpoints
type StateHandler struct {
	room Room
}

// NewStateHandler creates a new state handler
func NewStateHandler(room Room) *StateHandler {
	return &StateHandler{room: room}
}

// HandleGetState handles GET /api/room/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.room.Snapshot())
}

// HandlePostIntent handles POST /api/room/intents
func (h *StateHandler) HandlePostIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var intent session.Intent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIntentBytes)).Decode(&intent); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": fmt.Sprintf("invalid intent: %v", err)})
		return
	}

	result, err := h.room.Perform(r.Context(), intent)
	if err != nil {
		log.Warn().Err(err).Str("command", string(intent.Command)).Msg("intent failed")
		writeJSON(w, statusFor(err), map[string]string{"detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

// HandleHealth handles GET /health
func (h *StateHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := h.room.Snapshot()
	status := http.StatusOK
	if !snapshot.Connected {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"connected": snapshot.Connected,
		"joined":    snapshot.Joined,
		"phase":     snapshot.Phase,
	})
}

// RegisterRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/api/room/state", h.HandleGetState)
	mux.HandleFunc("/api/room/intents", h.HandlePostIntent)
}

// NewServer builds the local HTTP server with CORS and h2c
func NewServer(addr string, room Room, allowedOrigins []string) *http.Server {
	mux := http.NewServeMux()
	NewStateHandler(room).RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func statusFor(err error) int {
	var cmdErr *session.CommandError
	switch {
	case errors.Is(err, session.ErrUnknownIntent), errors.Is(err, session.ErrInvalidVolume):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrAckTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &cmdErr):
		return http.StatusConflict
	case errors.Is(err, session.ErrConnectionLost), errors.Is(err, session.ErrSessionClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
