package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
	"github.com/mcdev12/singalong/go/internal/room/reconcile"
)

// RoomVerifier checks room access before a join is attempted
type RoomVerifier interface {
	VerifyRoom(ctx context.Context, roomID, password string) error
}

// JoinRoom asks the relay to add this client to roomID and waits for the
// outcome. The join is deferred until the handshake completes, and the room
// is rejoined automatically after every reconnect.
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	waiter := make(chan error, 1)
	if err := s.post(func() {
		s.desiredRoom = roomID
		s.joinWaiters = append(s.joinWaiters, waiter)

		switch s.Phase() {
		case PhaseHandshaken:
			s.startJoin()
		case PhaseJoined:
			if s.current.RoomID == roomID {
				s.resolveJoin(nil)
				return
			}
			s.startJoin()
		}
	}); err != nil {
		return err
	}

	select {
	case err := <-waiter:
		return err
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// VerifyAndJoin checks the room password with the registry and then joins
func (s *Session) VerifyAndJoin(ctx context.Context, verifier RoomVerifier, roomID, password string) error {
	if err := verifier.VerifyRoom(ctx, roomID, password); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("room verification failed")
		return &JoinError{RoomID: roomID, Err: err}
	}
	return s.JoinRoom(ctx, roomID)
}

// startJoin sends join_room for the desired room. join_room bypasses the
// command buffer because it is what makes the session ready.
func (s *Session) startJoin() {
	if s.desiredRoom == "" || s.joinRequestID != "" {
		return
	}

	req := s.newRequest(protocol.CmdJoinRoom)
	frame, err := protocol.NewFrame(protocol.CmdJoinRoom, protocol.JoinRoomPayload{
		RoomID:    s.desiredRoom,
		RequestID: req.ID,
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", s.desiredRoom).Msg("failed to encode join_room")
		return
	}

	if s.current.Joined && s.current.RoomID != s.desiredRoom {
		s.predictor.Reset()
	}
	s.apply(reconcile.JoinStarted{RoomID: s.desiredRoom})

	s.joinRequestID = req.ID
	s.joiningRoom = s.desiredRoom
	s.register(req, s.config.AckTimeout)
	s.setPhase(PhaseJoinPending)

	log.Info().
		Str("room_id", s.desiredRoom).
		Str("request_id", req.ID).
		Msg("joining room")
	s.send(frame)
}

// finishJoin runs when the join_room request resolves
func (s *Session) finishJoin(err error) {
	roomID := s.joiningRoom
	s.joinRequestID = ""
	s.joiningRoom = ""

	if err == nil {
		s.apply(reconcile.JoinAccepted{RoomID: roomID})
		s.setPhase(PhaseJoined)
		log.Info().Str("room_id", roomID).Msg("joined room")

		s.requestSnapshots()
		s.flush()

		if s.desiredRoom != roomID {
			// a different room was requested while this join was in flight
			s.startJoin()
			return
		}
		s.resolveJoin(nil)
		return
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		// rejected by the relay: do not retry on reconnect
		if s.desiredRoom == roomID {
			s.desiredRoom = ""
		}
		s.apply(reconcile.JoinRejected{Reason: cmdErr.Message})
		err = protocol.ClassifyRoomError(cmdErr.Message)
	} else {
		s.apply(reconcile.JoinRejected{Reason: err.Error()})
	}

	if s.current.Handshaken {
		s.setPhase(PhaseHandshaken)
	}
	log.Warn().Err(err).Str("room_id", roomID).Msg("failed to join room")

	if s.desiredRoom != "" && s.desiredRoom != roomID && s.current.Handshaken {
		s.startJoin()
		return
	}
	s.resolveJoin(&JoinError{RoomID: roomID, Err: err})
}

// requestSnapshots asks for a fresh queue and player state right after a join
func (s *Session) requestSnapshots() {
	full, _ := protocol.NewFrame(protocol.CmdRequestFullState, struct{}{})
	s.send(full)

	if s.config.Role == protocol.RoleController {
		update, _ := protocol.NewFrame(protocol.CmdRequestQueueUpdate, nil)
		s.send(update)
	}
}

func (s *Session) resolveJoin(err error) {
	for _, w := range s.joinWaiters {
		w <- err
	}
	s.joinWaiters = nil
}
