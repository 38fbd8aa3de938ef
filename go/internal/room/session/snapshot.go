package session

import (
	"github.com/mcdev12/singalong/go/internal/room/protocol"
	"github.com/mcdev12/singalong/go/internal/room/reconcile"
)

// Snapshot is the read model handed to the presentation layer
type Snapshot struct {
	reconcile.State
	Phase      string                `json:"phase"`
	UpNext     protocol.Queue        `json:"up_next"`
	PlayerView *protocol.PlayerState `json:"player_view"`
}

// Snapshot returns the current state together with its derived views
func (s *Session) Snapshot() Snapshot {
	state := s.State()
	return Snapshot{
		State:      state,
		Phase:      s.Phase().String(),
		UpNext:     state.UpNext(),
		PlayerView: s.predictor.Present(state.PlayerState, state.OwnsTiming()),
	}
}
