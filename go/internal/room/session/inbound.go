package session

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
	"github.com/mcdev12/singalong/go/internal/room/reconcile"
)

func (s *Session) handleOpen() {
	s.apply(reconcile.Opened{})
	s.predictor.Reset()
	s.setPhase(PhaseHandshakePending)

	frame, err := protocol.NewFrame(protocol.CmdHandshake, s.config.Role)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode handshake")
		return
	}
	s.send(frame)
}

func (s *Session) handleClose(err error) {
	log.Warn().
		Err(err).
		Str("room_id", s.current.RoomID).
		Int("pending_requests", len(s.pending)).
		Msg("relay connection closed")

	s.apply(reconcile.Closed{})
	s.predictor.Reset()
	s.dropConnectionState()
	s.setPhase(PhaseDisconnected)
}

// handleFrame dispatches one inbound frame, in arrival order
func (s *Session) handleFrame(frame protocol.Frame) {
	if s.Phase() == PhaseHandshakePending && frame.Command != protocol.CmdError {
		s.apply(reconcile.HandshakeDone{})
		s.setPhase(PhaseHandshaken)
		log.Info().Str("role", string(s.config.Role)).Msg("handshake complete")
		s.startJoin()
	}

	switch frame.Command {
	case protocol.CmdClientCount:
		var count int
		if err := frame.Decode(&count); err != nil {
			log.Warn().Err(err).Msg("dropping client_count")
			return
		}
		s.apply(reconcile.ClientCountChanged{Count: count})

	case protocol.CmdQueueUpdate:
		var queue protocol.Queue
		if err := frame.Decode(&queue); err != nil {
			log.Warn().Err(err).Msg("dropping queue_update")
			return
		}
		s.apply(reconcile.QueueReceived{Queue: queue})

	case protocol.CmdPlayerState:
		if !frame.HasPayload() {
			return
		}
		var player protocol.PlayerState
		if err := frame.Decode(&player); err != nil {
			log.Warn().Err(err).Msg("dropping player_state")
			return
		}
		s.apply(reconcile.PlayerStateReceived{PlayerState: player})

	case protocol.CmdPlaySong:
		s.apply(reconcile.PlayStateNudged{PlayState: protocol.PlayStatePlaying})
		s.deliverOwnerCommand(frame)

	case protocol.CmdPauseSong:
		s.apply(reconcile.PlayStateNudged{PlayState: protocol.PlayStatePaused})
		s.deliverOwnerCommand(frame)

	case protocol.CmdSetVolume, protocol.CmdSendCurrentQueue, protocol.CmdRequestPlayerState:
		s.deliverOwnerCommand(frame)

	case protocol.CmdLeaderStatus:
		var status protocol.LeaderStatusPayload
		if err := frame.Decode(&status); err != nil {
			log.Warn().Err(err).Msg("dropping leader_status")
			return
		}
		if status.IsLeader != s.current.IsLeader {
			log.Info().Bool("is_leader", status.IsLeader).Msg("leadership changed")
		}
		s.apply(reconcile.LeaderChanged{IsLeader: status.IsLeader})

	case protocol.CmdPing:
		pong, _ := protocol.NewFrame(protocol.CmdPong, protocol.PingPayload{
			Timestamp: float64(s.clock.Now().UnixMilli()),
		})
		s.send(pong)

	case protocol.CmdAck:
		s.handleAck(frame)

	case protocol.CmdError:
		s.handleError(frame)

	default:
		log.Debug().Str("command", string(frame.Command)).Msg("ignoring unhandled relay command")
	}
}

func (s *Session) handleError(frame protocol.Frame) {
	payload := protocol.DecodeError(frame)
	log.Warn().
		Str("error_type", payload.ErrorType).
		Str("request_id", payload.RequestID).
		Str("message", payload.Message).
		Msg("relay reported error")

	if payload.RequestID != "" {
		if req, ok := s.pending[payload.RequestID]; ok {
			s.complete(payload.RequestID, nil, &CommandError{Command: req.Command, Message: payload.Message})
			return
		}
	}
	s.apply(reconcile.ErrorReceived{Message: payload.Message})
}
