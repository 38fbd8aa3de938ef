package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

// pendingCommand is a frame waiting for the session to become ready
type pendingCommand struct {
	Frame     protocol.Frame
	RequestID string
	IssuedAt  time.Time
}

// pendingRequest is an ack-style command awaiting its ack
type pendingRequest struct {
	ID       string
	Command  protocol.Command
	IssuedAt time.Time

	timer  clockwork.Timer
	result chan ackResult
}

type ackResult struct {
	result json.RawMessage
	err    error
}

// SendCommand transmits a fire-and-forget command, or buffers it until the
// session is handshaken and joined. Only encoding and lifecycle errors are
// returned.
func (s *Session) SendCommand(cmd protocol.Command, payload any) error {
	frame, err := protocol.NewFrame(cmd, payload)
	if err != nil {
		return err
	}
	return s.post(func() { s.transmit(frame, "") })
}

// SendCommandWithAck sends a command carrying a fresh request_id and waits
// for the correlated ack. A non-positive timeout uses the configured default.
// The payload must encode to a JSON object or null.
func (s *Session) SendCommandWithAck(ctx context.Context, cmd protocol.Command, payload any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = s.config.AckTimeout
	}

	frame, err := protocol.NewFrame(cmd, payload)
	if err != nil {
		return nil, err
	}

	req := s.newRequest(cmd)
	frame.Payload, err = protocol.WithRequestID(frame.Payload, req.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}

	if err := s.post(func() {
		s.register(req, timeout)
		s.transmit(frame, req.ID)
	}); err != nil {
		return nil, err
	}

	return s.await(ctx, req)
}

func (s *Session) await(ctx context.Context, req *pendingRequest) (json.RawMessage, error) {
	select {
	case res := <-req.result:
		return res.result, res.err
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		s.post(func() { s.complete(req.ID, nil, ctx.Err()) })
		return nil, ctx.Err()
	}
}

func (s *Session) newRequest(cmd protocol.Command) *pendingRequest {
	now := s.clock.Now()
	return &pendingRequest{
		ID:       fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		Command:  cmd,
		IssuedAt: now,
		result:   make(chan ackResult, 1),
	}
}

// register starts the ack timer. Registration is independent of whether the
// frame goes out now or waits in the buffer.
func (s *Session) register(req *pendingRequest, timeout time.Duration) {
	s.pending[req.ID] = req
	req.timer = s.clock.AfterFunc(timeout, func() {
		s.post(func() { s.expire(req.ID, timeout) })
	})
}

func (s *Session) expire(requestID string, timeout time.Duration) {
	req, ok := s.pending[requestID]
	if !ok {
		return
	}
	log.Warn().
		Str("request_id", requestID).
		Str("command", string(req.Command)).
		Dur("timeout", timeout).
		Msg("command timed out waiting for ack")
	s.complete(requestID, nil, ErrAckTimeout)
}

// complete resolves a pending request exactly once. It reports whether the
// request was still pending.
func (s *Session) complete(requestID string, result json.RawMessage, err error) bool {
	req, ok := s.pending[requestID]
	if !ok {
		return false
	}
	delete(s.pending, requestID)
	req.timer.Stop()
	s.unbuffer(requestID)

	if requestID == s.joinRequestID {
		s.finishJoin(err)
	}
	req.result <- ackResult{result: result, err: err}
	return true
}

func (s *Session) handleAck(frame protocol.Frame) {
	var ack protocol.AckPayload
	if err := frame.Decode(&ack); err != nil {
		log.Warn().Err(err).Msg("dropping undecodable ack")
		return
	}

	req, ok := s.pending[ack.RequestID]
	if !ok {
		log.Debug().Str("request_id", ack.RequestID).Msg("dropping ack for unknown request")
		return
	}

	if ack.Success {
		s.complete(ack.RequestID, ack.Result, nil)
		return
	}
	s.complete(ack.RequestID, nil, &CommandError{Command: req.Command, Message: ack.Error})
}

// transmit sends the frame if the session is ready, otherwise buffers it
func (s *Session) transmit(frame protocol.Frame, requestID string) {
	if !s.current.Ready() {
		s.buffer = append(s.buffer, pendingCommand{
			Frame:     frame,
			RequestID: requestID,
			IssuedAt:  s.clock.Now(),
		})
		log.Debug().
			Str("command", string(frame.Command)).
			Int("buffered", len(s.buffer)).
			Msg("session not ready, buffering command")
		return
	}
	s.send(frame)
}

// send writes straight to the transport, bypassing the buffer
func (s *Session) send(frame protocol.Frame) {
	if err := s.sender.Send(frame); err != nil {
		log.Warn().
			Err(err).
			Str("command", string(frame.Command)).
			Msg("failed to send command")
	}
}

func (s *Session) flush() {
	if len(s.buffer) == 0 {
		return
	}
	buffered := s.buffer
	s.buffer = nil

	log.Info().
		Int("count", len(buffered)).
		Str("room_id", s.current.RoomID).
		Msg("flushing buffered commands")

	for _, cmd := range buffered {
		s.send(cmd.Frame)
	}
}

func (s *Session) unbuffer(requestID string) {
	if requestID == "" {
		return
	}
	kept := s.buffer[:0]
	for _, cmd := range s.buffer {
		if cmd.RequestID != requestID {
			kept = append(kept, cmd)
		}
	}
	s.buffer = kept
}

func (s *Session) dropConnectionState() {
	if len(s.buffer) > 0 {
		log.Warn().Int("count", len(s.buffer)).Msg("dropping buffered commands after disconnect")
	}
	s.buffer = nil

	for id := range s.pending {
		s.complete(id, nil, ErrConnectionLost)
	}
}
