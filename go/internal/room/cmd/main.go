package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/singalong/go/clients/registry_client"
	"github.com/mcdev12/singalong/go/internal/room/bridge"
	"github.com/mcdev12/singalong/go/internal/room/session"
	"github.com/mcdev12/singalong/go/internal/room/statehttp"
	"github.com/mcdev12/singalong/go/internal/room/transport"
	"github.com/mcdev12/singalong/go/internal/roomconfig"
)

func main() {
	configPath := flag.String("config", "roomclient.yaml", "path to the yaml config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	config, err := roomconfig.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := run(config); err != nil {
		log.Error().Err(err).Msg("room client stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("room client shutdown complete")
}

// run wires the client and blocks until a shutdown signal or a fatal error.
// Deferred cleanup always runs before it returns.
func run(config *roomconfig.Config) error {
	log.Info().
		Str("role", string(config.Role)).
		Str("relay_url", config.Relay.URL).
		Str("room_id", config.Room.ID).
		Str("nats_url", config.NATS.URL).
		Msg("starting room client")

	connConfig := transport.DefaultConfig(config.Relay.URL)
	connConfig.ReconnectBase = config.Relay.ReconnectBase
	connConfig.ReconnectCap = config.Relay.ReconnectCap
	connConfig.MaxAttempts = config.Relay.MaxAttempts
	connConfig.SendBufferSize = config.Relay.SendBufferSize
	connManager := transport.NewConnectionManager(connConfig, nil)

	sess := session.New(session.Config{
		Role:          config.Role,
		AckTimeout:    config.Relay.AckTimeout,
		SyncThreshold: config.SyncThreshold(),
	}, connManager)

	registry := registry_client.NewRegistryClient(config.Registry.URL)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(sess.Run(ctx))
	})

	g.Go(func() error {
		err := connManager.Run(ctx, sess)
		if errors.Is(err, transport.ErrReconnectExhausted) {
			log.Error().Err(err).Msg("relay unreachable, giving up")
			return err
		}
		return ignoreCanceled(err)
	})

	if config.Room.ID != "" {
		g.Go(func() error {
			joinRoom(ctx, sess, registry, config.Room.ID, config.Room.Password)
			return nil
		})
	}

	if config.Registry.HeartbeatInterval > 0 {
		g.Go(func() error {
			monitorRegistry(ctx, registry, config.Registry.HeartbeatInterval)
			return nil
		})
	}

	if config.NATS.URL != "" {
		nc, err := startBridge(ctx, g, config, sess)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("failed to start presentation bridge: %w", err)
		}
		defer nc.Drain()
	}

	if addr := config.HTTPAddr(); addr != "" {
		server := statehttp.NewServer(addr, sess, config.HTTP.AllowedOrigins)

		g.Go(func() error {
			log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("HTTP server shutdown failed")
			}
			return nil
		})
	}

	return g.Wait()
}

func startBridge(ctx context.Context, g *errgroup.Group, config *roomconfig.Config, sess *session.Session) (*nats.Conn, error) {
	bridgeConfig := bridge.DefaultConfig()
	bridgeConfig.URL = config.NATS.URL
	bridgeConfig.SubjectPrefix = config.NATS.SubjectPrefix
	bridgeConfig.StateBucket = config.NATS.StateBucket

	nc, err := bridge.Connect(bridgeConfig)
	if err != nil {
		return nil, err
	}

	var store bridge.StateStore
	if bridgeConfig.StateBucket != "" {
		kv, err := bridge.OpenStateStore(ctx, nc, bridgeConfig.StateBucket)
		if err != nil {
			nc.Close()
			return nil, err
		}
		store = kv
	}

	b := bridge.New(nc, store, sess, bridgeConfig)
	g.Go(func() error {
		return ignoreCanceled(b.Run(ctx))
	})
	return nc, nil
}

func joinRoom(ctx context.Context, sess *session.Session, registry *registry_client.RegistryClient, roomID, password string) {
	err := sess.VerifyAndJoin(ctx, registry, roomID, password)
	switch {
	case err == nil:
		log.Info().Str("room_id", roomID).Msg("joined room")
	case session.NeedsPassword(err):
		log.Error().Err(err).Str("room_id", roomID).Msg("room requires a valid password, set ROOMCLIENT_ROOM_PASSWORD")
	case errors.Is(err, context.Canceled):
	default:
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to join room")
	}
}

func monitorRegistry(ctx context.Context, registry *registry_client.RegistryClient, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := registry.Heartbeat(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("room registry unreachable")
			}
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
