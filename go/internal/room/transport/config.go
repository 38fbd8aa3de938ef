package transport

import (
	"net/http"
	"time"
)

// Config controls dialing, keepalive and reconnect behaviour
type Config struct {
	URL    string
	Header http.Header

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	SendBufferSize   int

	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	// MaxAttempts bounds consecutive failed reconnects. Zero or less retries forever.
	MaxAttempts int
}

// DefaultConfig returns the relay defaults for url
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     54 * time.Second,
		MaxMessageSize:   1 << 20,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		SendBufferSize:   256,
		ReconnectBase:    time.Second,
		ReconnectCap:     30 * time.Second,
		MaxAttempts:      10,
	}
}
