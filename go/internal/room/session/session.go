package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
	"github.com/mcdev12/singalong/go/internal/room/reconcile"
	"github.com/mcdev12/singalong/go/internal/room/smartsync"
)

// DefaultAckTimeout bounds how long an ack-style command waits for its ack
const DefaultAckTimeout = 10 * time.Second

// Sender transmits frames on the current physical connection
type Sender interface {
	Send(frame protocol.Frame) error
}

// Phase is the join state machine position
type Phase int32

const (
	PhaseDisconnected Phase = iota
	PhaseHandshakePending
	PhaseHandshaken
	PhaseJoinPending
	PhaseJoined
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseHandshakePending:
		return "handshake-pending"
	case PhaseHandshaken:
		return "handshaken"
	case PhaseJoinPending:
		return "join-pending"
	case PhaseJoined:
		return "joined"
	}
	return "unknown"
}

// Config configures a Session
type Config struct {
	Role          protocol.Role
	AckTimeout    time.Duration
	SyncThreshold time.Duration
	InboxSize     int
	MailboxSize   int
	Clock         clockwork.Clock
}

// Session is the client side of one room membership. All protocol state is
// owned by the goroutine running Run; other goroutines talk to it through
// its mailbox and read published snapshots.
type Session struct {
	config    Config
	sender    Sender
	clock     clockwork.Clock
	predictor *smartsync.Predictor

	mailbox chan func()
	done    chan struct{}
	inbox   chan OwnerCommand

	state atomic.Pointer[reconcile.State]
	phase atomic.Int32

	listenersMu  sync.Mutex
	listeners    map[int]chan reconcile.State
	nextListener int

	// owned by the Run goroutine
	current       reconcile.State
	buffer        []pendingCommand
	pending       map[string]*pendingRequest
	desiredRoom   string
	joinRequestID string
	joiningRoom   string
	joinWaiters   []chan error
}

// New creates a session that transmits through sender. Run must be called
// for the session to make progress.
func New(config Config, sender Sender) *Session {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.AckTimeout <= 0 {
		config.AckTimeout = DefaultAckTimeout
	}
	if config.InboxSize <= 0 {
		config.InboxSize = 64
	}
	if config.MailboxSize <= 0 {
		config.MailboxSize = 256
	}

	s := &Session{
		config:    config,
		sender:    sender,
		clock:     config.Clock,
		predictor: smartsync.NewPredictor(config.Clock, config.SyncThreshold),
		mailbox:   make(chan func(), config.MailboxSize),
		done:      make(chan struct{}),
		inbox:     make(chan OwnerCommand, config.InboxSize),
		listeners: make(map[int]chan reconcile.State),
		current:   reconcile.NewState(config.Role),
		pending:   make(map[string]*pendingRequest),
	}
	initial := s.current
	s.state.Store(&initial)
	return s
}

// Run processes transport events and caller requests until ctx is done.
// Pending requests are rejected with ErrSessionClosed on exit.
func (s *Session) Run(ctx context.Context) error {
	log.Info().Str("role", string(s.config.Role)).Msg("room session started")

	defer func() {
		close(s.done)
		s.shutdown()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("role", string(s.config.Role)).Msg("room session stopped")
			return ctx.Err()
		case fn := <-s.mailbox:
			fn()
		}
	}
}

// State returns the latest published state
func (s *Session) State() reconcile.State {
	return *s.state.Load()
}

// Phase returns the current join state machine position
func (s *Session) Phase() Phase {
	return Phase(s.phase.Load())
}

// PlayerView returns the player state to present: raw for the playback owner,
// smoothed for followers.
func (s *Session) PlayerView() *protocol.PlayerState {
	state := s.State()
	return s.predictor.Present(state.PlayerState, state.OwnsTiming())
}

// Subscribe returns a channel that receives every published state. A slow
// reader only sees the newest unread state. Call the returned func to stop.
func (s *Session) Subscribe() (<-chan reconcile.State, func()) {
	ch := make(chan reconcile.State, 1)

	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = ch
	s.listenersMu.Unlock()

	return ch, func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// Done is closed when Run returns
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// OnOpen implements transport.Handler
func (s *Session) OnOpen() {
	s.post(s.handleOpen)
}

// OnFrame implements transport.Handler
func (s *Session) OnFrame(frame protocol.Frame) {
	s.post(func() { s.handleFrame(frame) })
}

// OnClose implements transport.Handler
func (s *Session) OnClose(err error) {
	s.post(func() { s.handleClose(err) })
}

// post hands fn to the Run goroutine. It fails only once Run has exited.
func (s *Session) post(fn func()) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case <-s.done:
		return ErrSessionClosed
	case s.mailbox <- fn:
		return nil
	}
}

// call runs fn on the Run goroutine and waits for it to finish
func (s *Session) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := s.post(func() {
		fn()
		close(finished)
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// apply runs the reducer and publishes the result
func (s *Session) apply(ev reconcile.Event) {
	prev := s.current
	s.current = reconcile.Reduce(s.current, ev)

	switch e := ev.(type) {
	case reconcile.QueueReceived:
		if s.current.Queue == prev.Queue {
			log.Debug().
				Int64("version", e.Queue.Version).
				Float64("timestamp", e.Queue.Timestamp).
				Msg("discarding stale queue snapshot")
		}
	case reconcile.PlayerStateReceived:
		if s.current.PlayerState == prev.PlayerState {
			log.Debug().
				Int64("version", e.PlayerState.Version).
				Float64("timestamp", e.PlayerState.Timestamp).
				Msg("discarding stale player state")
		}
	}

	published := s.current
	s.state.Store(&published)
	s.notify(published)
}

func (s *Session) setPhase(p Phase) {
	if Phase(s.phase.Swap(int32(p))) != p {
		log.Debug().
			Str("phase", p.String()).
			Str("room_id", s.current.RoomID).
			Msg("session phase changed")
	}
}

func (s *Session) notify(state reconcile.State) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	for _, ch := range s.listeners {
		select {
		case ch <- state:
			continue
		default:
		}
		// replace the unread state with the newest one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
		default:
		}
	}
}

func (s *Session) shutdown() {
	for id, req := range s.pending {
		req.timer.Stop()
		delete(s.pending, id)
		req.result <- ackResult{err: ErrSessionClosed}
	}
	for _, w := range s.joinWaiters {
		w <- ErrSessionClosed
	}
	s.joinWaiters = nil
	s.buffer = nil
}
