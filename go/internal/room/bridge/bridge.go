package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/singalong/go/internal/room/reconcile"
	"github.com/mcdev12/singalong/go/internal/room/session"
)

// ErrWrongRoom is replied when an intent targets a room this client is not in
var ErrWrongRoom = errors.New("intent addressed to another room")

// Config holds the NATS settings for the presentation bridge
type Config struct {
	URL           string
	SubjectPrefix string // e.g. "singalong.rooms"
	StateBucket   string // JetStream KV bucket for the latest snapshot, empty to disable
	IntentTimeout time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default bridge configuration
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "singalong.rooms",
		IntentTimeout: 15 * time.Second,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Conn is the subset of *nats.Conn the bridge needs
type Conn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// StateStore keeps the latest snapshot per room. jetstream.KeyValue satisfies it.
type StateStore interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// Room is the session surface the bridge drives
type Room interface {
	Subscribe() (<-chan reconcile.State, func())
	Snapshot() session.Snapshot
	Perform(ctx context.Context, intent session.Intent) (json.RawMessage, error)
}

// IntentReply is the request/reply response body
type IntentReply struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Bridge publishes room snapshots and serves intents over NATS
type Bridge struct {
	conn   Conn
	store  StateStore
	room   Room
	config Config
}

// New creates a bridge. store may be nil.
func New(conn Conn, store StateStore, room Room, config Config) *Bridge {
	if config.IntentTimeout <= 0 {
		config.IntentTimeout = DefaultConfig().IntentTimeout
	}
	return &Bridge{conn: conn, store: store, room: room, config: config}
}

// Connect dials NATS with the bridge's reconnect policy
func Connect(config Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("singalong-roomclient"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// OpenStateStore creates or updates the snapshot bucket
func OpenStateStore(ctx context.Context, nc *nats.Conn, bucket string) (jetstream.KeyValue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "latest room snapshot per room",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create key value bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// StateSubject is where snapshots for roomID are published
func (b *Bridge) StateSubject(roomID string) string {
	return fmt.Sprintf("%s.%s.state", b.config.SubjectPrefix, roomID)
}

// IntentSubject is where intents for roomID are received
func (b *Bridge) IntentSubject(roomID string) string {
	return fmt.Sprintf("%s.%s.intents", b.config.SubjectPrefix, roomID)
}

// Run forwards every state change until ctx is done
func (b *Bridge) Run(ctx context.Context) error {
	sub, err := b.conn.Subscribe(b.IntentSubject("*"), func(msg *nats.Msg) {
		b.handleIntent(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe to intents: %w", err)
	}
	defer sub.Unsubscribe()

	updates, stop := b.room.Subscribe()
	defer stop()

	log.Info().Str("prefix", b.config.SubjectPrefix).Msg("presentation bridge started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("presentation bridge stopped")
			return ctx.Err()
		case state := <-updates:
			if state.RoomID == "" {
				continue
			}
			b.publish(ctx, b.room.Snapshot())
		}
	}
}

func (b *Bridge) publish(ctx context.Context, snapshot session.Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode room snapshot")
		return
	}

	if err := b.conn.Publish(b.StateSubject(snapshot.RoomID), data); err != nil {
		log.Error().Err(err).Str("room_id", snapshot.RoomID).Msg("failed to publish room snapshot")
	}

	if b.store != nil {
		if _, err := b.store.Put(ctx, snapshot.RoomID, data); err != nil {
			log.Warn().Err(err).Str("room_id", snapshot.RoomID).Msg("failed to store room snapshot")
		}
	}
}

func (b *Bridge) handleIntent(ctx context.Context, msg *nats.Msg) {
	reply := b.perform(ctx, msg)
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode intent reply")
		return
	}
	if err := b.conn.Publish(msg.Reply, data); err != nil {
		log.Error().Err(err).Str("reply", msg.Reply).Msg("failed to send intent reply")
	}
}

func (b *Bridge) perform(ctx context.Context, msg *nats.Msg) IntentReply {
	roomID := roomFromSubject(b.config.SubjectPrefix, msg.Subject)
	if current := b.room.Snapshot().RoomID; roomID != current {
		return IntentReply{Error: fmt.Sprintf("%v: %s", ErrWrongRoom, roomID)}
	}

	var intent session.Intent
	if err := json.Unmarshal(msg.Data, &intent); err != nil {
		return IntentReply{Error: fmt.Sprintf("decode intent: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.IntentTimeout)
	defer cancel()

	result, err := b.room.Perform(ctx, intent)
	if err != nil {
		log.Warn().
			Err(err).
			Str("room_id", roomID).
			Str("command", string(intent.Command)).
			Msg("intent failed")
		return IntentReply{Error: err.Error()}
	}
	return IntentReply{OK: true, Result: result}
}

// roomFromSubject extracts the room token from <prefix>.<room>.intents
func roomFromSubject(prefix, subject string) string {
	rest := strings.TrimPrefix(subject, prefix+".")
	return strings.TrimSuffix(rest, ".intents")
}
