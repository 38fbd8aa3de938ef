package roomconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/singalong/go/internal/room/protocol"
)

// Config holds everything the roomclient binary needs
type Config struct {
	Role     protocol.Role `yaml:"role"`
	LogLevel string        `yaml:"log_level"`

	Relay struct {
		URL            string        `yaml:"url"`
		AckTimeout     time.Duration `yaml:"ack_timeout"`
		ReconnectBase  time.Duration `yaml:"reconnect_base"`
		ReconnectCap   time.Duration `yaml:"reconnect_cap"`
		MaxAttempts    int           `yaml:"max_attempts"`
		SendBufferSize int           `yaml:"send_buffer_size"`
	} `yaml:"relay"`

	Registry struct {
		URL               string        `yaml:"url"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	} `yaml:"registry"`

	Room struct {
		ID       string `yaml:"id"`
		Password string `yaml:"-"`
	} `yaml:"room"`

	Sync struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"sync"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
		StateBucket   string `yaml:"state_bucket"`
	} `yaml:"nats"`

	HTTP struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
}

// Default returns the built-in configuration
func Default() *Config {
	c := &Config{Role: protocol.RoleController, LogLevel: "info"}
	c.Relay.URL = "ws://localhost:8000/ws"
	c.Relay.AckTimeout = 10 * time.Second
	c.Relay.ReconnectBase = time.Second
	c.Relay.ReconnectCap = 30 * time.Second
	c.Relay.MaxAttempts = 10
	c.Relay.SendBufferSize = 256
	c.Registry.URL = "http://localhost:8000"
	c.Registry.HeartbeatInterval = 30 * time.Second
	c.Sync.Threshold = 2.0
	c.NATS.SubjectPrefix = "singalong.rooms"
	c.HTTP.Port = 8090
	c.HTTP.AllowedOrigins = []string{"*"}
	return c
}

// Load reads an optional yaml file and overlays ROOMCLIENT_* environment variables
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.Role = protocol.Role(getEnv("ROOMCLIENT_ROLE", string(c.Role)))
	c.LogLevel = getEnv("ROOMCLIENT_LOG_LEVEL", c.LogLevel)

	c.Relay.URL = getEnv("ROOMCLIENT_RELAY_URL", c.Relay.URL)
	c.Relay.AckTimeout = getEnvAsDuration("ROOMCLIENT_ACK_TIMEOUT", c.Relay.AckTimeout)
	c.Relay.ReconnectBase = getEnvAsDuration("ROOMCLIENT_RECONNECT_BASE", c.Relay.ReconnectBase)
	c.Relay.ReconnectCap = getEnvAsDuration("ROOMCLIENT_RECONNECT_CAP", c.Relay.ReconnectCap)
	c.Relay.MaxAttempts = getEnvAsInt("ROOMCLIENT_MAX_ATTEMPTS", c.Relay.MaxAttempts)
	c.Relay.SendBufferSize = getEnvAsInt("ROOMCLIENT_SEND_BUFFER_SIZE", c.Relay.SendBufferSize)

	c.Registry.URL = getEnv("ROOMCLIENT_REGISTRY_URL", c.Registry.URL)
	c.Registry.HeartbeatInterval = getEnvAsDuration("ROOMCLIENT_HEARTBEAT_INTERVAL", c.Registry.HeartbeatInterval)

	c.Room.ID = getEnv("ROOMCLIENT_ROOM_ID", c.Room.ID)
	c.Room.Password = getEnv("ROOMCLIENT_ROOM_PASSWORD", c.Room.Password)

	if v := os.Getenv("ROOMCLIENT_SYNC_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Sync.Threshold = f
		}
	}

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("ROOMCLIENT_NATS_PREFIX", c.NATS.SubjectPrefix)
	c.NATS.StateBucket = getEnv("ROOMCLIENT_STATE_BUCKET", c.NATS.StateBucket)

	c.HTTP.Port = getEnvAsInt("ROOMCLIENT_HTTP_PORT", c.HTTP.Port)
	if v := os.Getenv("ROOMCLIENT_ALLOWED_ORIGINS"); v != "" {
		c.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
}

// Validate rejects settings the client cannot run with
func (c *Config) Validate() error {
	if !c.Role.Valid() {
		return fmt.Errorf("invalid role %q", c.Role)
	}
	if c.Relay.URL == "" {
		return errors.New("relay url is required")
	}
	if c.Relay.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout must be positive, got %s", c.Relay.AckTimeout)
	}
	if c.Relay.SendBufferSize <= 0 {
		return fmt.Errorf("send buffer size must be positive, got %d", c.Relay.SendBufferSize)
	}
	if c.Sync.Threshold <= 0 {
		return fmt.Errorf("sync threshold must be positive, got %v", c.Sync.Threshold)
	}
	return nil
}

// SyncThreshold converts the configured drift tolerance in seconds
func (c *Config) SyncThreshold() time.Duration {
	return time.Duration(c.Sync.Threshold * float64(time.Second))
}

// HTTPAddr is the listen address of the local state endpoint, empty when disabled
func (c *Config) HTTPAddr() string {
	if c.HTTP.Port <= 0 {
		return ""
	}
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
