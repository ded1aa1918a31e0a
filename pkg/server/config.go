package server

import (
	"net/http"
	"time"

	"github.com/mapforge/mapforge/pkg/protocol"
)

// SessionConfig holds per-connection configuration.
type SessionConfig struct {
	// ReadTimeout is the maximum time to wait for a message from the
	// client. Clients heartbeat well inside this window, so hitting it
	// means the peer is gone. Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HandshakeTimeout bounds the wait for the join request after the
	// socket opens. Default: 10 seconds.
	HandshakeTimeout time.Duration

	// MaxMessageSize is the maximum size of an incoming WebSocket
	// message. Default: frame header plus the largest payload.
	MaxMessageSize int64

	// SendQueueSize is the per-connection outbound frame buffer. A
	// client that cannot drain this is disconnected rather than allowed
	// to stall the room. Default: 256.
	SendQueueSize int

	// ChunkSize is the asset chunk payload size in bytes.
	// Default: protocol.DefaultChunkSize.
	ChunkSize int
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   protocol.FrameHeaderSize + protocol.MaxPayloadSize,
		SendQueueSize:    256,
		ChunkSize:        protocol.DefaultChunkSize,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on. Default: ":4444".
	Address string

	// GMPassword and PlayerPassword gate the two roles. A client joins
	// the role whose password digest it presents. Empty means the role
	// is open.
	GMPassword     string
	PlayerPassword string

	// Policy is the initial server policy pushed to joining clients.
	Policy protocol.ServerPolicy

	// MaxClients caps concurrent connections. 0 means no limit.
	MaxClients int

	// AssetCacheDir, when non-empty, backs the asset store with an
	// on-disk cache that survives restarts.
	AssetCacheDir string

	// ReadBufferSize and WriteBufferSize size the WebSocket buffers.
	// Default: 4096 each.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the request origin. Default allows all
	// origins; desktop clients do not send a browser Origin header.
	CheckOrigin func(r *http.Request) bool

	// SessionConfig is the per-connection configuration.
	// Default: DefaultSessionConfig().
	SessionConfig *SessionConfig

	// ShutdownTimeout is the maximum time to wait for graceful
	// shutdown. Default: 30 seconds.
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":4444",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
		SessionConfig:   DefaultSessionConfig(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// Clone returns a deep copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.SessionConfig = c.SessionConfig.Clone()
	return &clone
}

// withDefaults fills zero fields from the defaults.
func (c *ServerConfig) withDefaults() *ServerConfig {
	def := DefaultServerConfig()
	if c == nil {
		return def
	}
	out := c.Clone()
	if out.Address == "" {
		out.Address = def.Address
	}
	if out.ReadBufferSize == 0 {
		out.ReadBufferSize = def.ReadBufferSize
	}
	if out.WriteBufferSize == 0 {
		out.WriteBufferSize = def.WriteBufferSize
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = def.CheckOrigin
	}
	if out.SessionConfig == nil {
		out.SessionConfig = def.SessionConfig
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = def.ShutdownTimeout
	}
	return out
}
