package client

import (
	"time"

	"github.com/mapforge/mapforge/pkg/protocol"
)

// Config holds the connection settings for a client.
type Config struct {
	// URL is the server WebSocket endpoint, e.g. "ws://host:4444/ws".
	URL string

	// PlayerName is the name presented at join. Must be unique on the
	// server.
	PlayerName string

	// Password is the plaintext role password; only its digest crosses
	// the wire.
	Password string

	// Role is the requested role. Default: RolePlayer.
	Role protocol.Role

	// HeartbeatInterval is the time between liveness heartbeats.
	// Default: 20 seconds.
	HeartbeatInterval time.Duration

	// HandshakeTimeout bounds the dial plus join exchange.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// SendQueueSize is the outbound frame buffer. Default: 256.
	SendQueueSize int

	// ChunkSize is the asset chunk payload size for uploads.
	// Default: protocol.DefaultChunkSize.
	ChunkSize int
}

// DefaultConfig returns a Config with sensible defaults. PlayerName and
// URL must still be set.
func DefaultConfig() *Config {
	return &Config{
		Role:              protocol.RolePlayer,
		HeartbeatInterval: 20 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendQueueSize:     256,
		ChunkSize:         protocol.DefaultChunkSize,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	out := c.Clone()
	if out == nil {
		out = def
	}
	if out.HeartbeatInterval == 0 {
		out.HeartbeatInterval = def.HeartbeatInterval
	}
	if out.HandshakeTimeout == 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = def.WriteTimeout
	}
	if out.SendQueueSize == 0 {
		out.SendQueueSize = def.SendQueueSize
	}
	if out.ChunkSize == 0 {
		out.ChunkSize = def.ChunkSize
	}
	return out
}
