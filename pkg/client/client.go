package client

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mapforge/mapforge/internal/logging"
	"github.com/mapforge/mapforge/pkg/asset"
	"github.com/mapforge/mapforge/pkg/protocol"
	"github.com/mapforge/mapforge/pkg/tabletop"
	"github.com/mapforge/mapforge/pkg/transfer"
)

// RefusedError is returned by Dial when the server rejects the join.
type RefusedError struct {
	Code    protocol.HandshakeStatus
	Message string
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("join refused (%s): %s", e.Code, e.Message)
}

// Client is one player's connection to a campaign server. It mirrors
// the campaign locally by applying every command the server relays and
// pushes the player's own actions upstream.
type Client struct {
	cfg    *Config
	logger *zap.SugaredLogger

	ws       *websocket.Conn
	campaign *tabletop.Campaign
	store    *asset.Store

	producer *transfer.Producer
	consumer *transfer.Consumer

	send     chan *protocol.Frame
	sendKick chan struct{}
	closing  chan closeRequest

	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	mu     sync.RWMutex
	policy protocol.ServerPolicy
	roster map[string]protocol.Role

	// onCommand, when set, observes every command applied from the
	// server. UI layers hang off this.
	onCommand func(cmd protocol.Command)

	// onDisconnect fires once when the connection ends, after the
	// shared campaign view has been cleared. expected is false when the
	// link died without a deliberate close; the emptied campaign then
	// serves as a fresh personal one.
	onDisconnect func(expected bool)
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = l }
}

// WithStore sets the local asset store.
func WithStore(store *asset.Store) Option {
	return func(c *Client) { c.store = store }
}

// OnCommand registers an observer for commands applied from the server.
func OnCommand(fn func(cmd protocol.Command)) Option {
	return func(c *Client) { c.onCommand = fn }
}

// OnDisconnect registers the disconnect callback.
func OnDisconnect(fn func(expected bool)) Option {
	return func(c *Client) { c.onDisconnect = fn }
}

// Dial connects to a campaign server and runs the join handshake. On
// success the client's loops are running and its campaign fills as the
// server replays state.
func Dial(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:      cfg,
		logger:   logging.Nop(),
		campaign: tabletop.NewCampaign(),
		producer: transfer.NewProducer(cfg.ChunkSize),
		send:     make(chan *protocol.Frame, cfg.SendQueueSize),
		sendKick: make(chan struct{}, 1),
		closing:  make(chan closeRequest, 1),
		done:     make(chan struct{}),
		roster:   make(map[string]protocol.Role),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = asset.NewStore()
	}
	c.consumer = transfer.NewConsumer(c.store)

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	c.ws = ws

	if err := c.join(); err != nil {
		ws.Close()
		return nil, err
	}

	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// join runs the client side of the handshake on the fresh socket.
func (c *Client) join() error {
	req := &protocol.JoinRequest{
		PlayerName:    c.cfg.PlayerName,
		Role:          c.cfg.Role,
		ClientVersion: protocol.Version,
	}
	if c.cfg.Password != "" {
		digest := sha256.Sum256([]byte(c.cfg.Password))
		req.PasswordDigest = digest[:]
	}

	frame := protocol.NewFrame(protocol.FrameHandshake, protocol.EncodeJoinRequest(req))
	data, err := frame.Encode()
	if err != nil {
		return fmt.Errorf("join write: %w", err)
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("join write: %w", err)
	}

	c.ws.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("join read: %w", err)
	}

	rf, err := protocol.DecodeFrame(msg)
	if err != nil || rf.Type != protocol.FrameHandshake {
		return fmt.Errorf("unexpected join reply")
	}
	resp, err := protocol.DecodeJoinResponse(rf.Payload)
	if err != nil {
		return fmt.Errorf("join reply decode: %w", err)
	}
	if resp.Code != protocol.HandshakeOK {
		return &RefusedError{Code: resp.Code, Message: resp.Message}
	}
	if resp.Policy != nil {
		c.mu.Lock()
		c.policy = *resp.Policy
		c.mu.Unlock()
	}
	return nil
}

// Campaign returns the locally mirrored campaign.
func (c *Client) Campaign() *tabletop.Campaign { return c.campaign }

// Store returns the local asset store.
func (c *Client) Store() *asset.Store { return c.store }

// Policy returns the server policy as last pushed.
func (c *Client) Policy() protocol.ServerPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// Roster returns the currently connected players, as reported by the
// server's roster events.
func (c *Client) Roster() map[string]protocol.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]protocol.Role, len(c.roster))
	for name, role := range c.roster {
		out[name] = role
	}
	return out
}

// Do applies a command locally and sends it to the server. The server
// never echoes a command back to its sender, so applying here is what
// keeps the local mirror current. SetPolicy mirrors into the policy
// field instead of the campaign, matching how relayed commands land.
func (c *Client) Do(cmd protocol.Command) error {
	frame := protocol.CommandFrame(cmd)
	if len(frame.Payload) > protocol.MaxPayloadSize {
		return protocol.ErrFrameTooLarge
	}

	if sp, ok := cmd.(*protocol.SetPolicy); ok {
		c.mu.Lock()
		c.policy = sp.Policy
		c.mu.Unlock()
	} else {
		c.campaign.Apply(cmd)
	}
	c.sendFrame(frame)
	return nil
}

// AddAsset installs data in the local store and announces it to the
// server, which will request the bytes if it lacks them.
func (c *Client) AddAsset(data []byte, name string) asset.ID {
	id := c.store.Put(data, name)
	c.sendFrame(protocol.CommandFrame(&protocol.PutAssetMeta{
		ID:   id,
		Name: name,
		Size: int64(len(data)),
	}))
	return id
}

// RequestAsset registers interest in an asset. The listener fires when
// the asset lands in the local store, immediately if it is already
// there. Repeated requests for an in-flight asset coalesce.
func (c *Client) RequestAsset(id asset.ID, l transfer.Listener) {
	if c.consumer.Want(id, l) {
		c.sendFrame(protocol.CommandFrame(&protocol.GetAsset{ID: id}))
	}
}

// Disconnect closes the session deliberately. The close frame is
// delivered by the write loop, the socket's only writer; Disconnect
// returns once the connection has torn down. The server sees a normal
// close and the disconnect callback reports expected.
func (c *Client) Disconnect() {
	select {
	case c.closing <- closeRequest{frame: protocol.CloseFrame(protocol.CloseNormal, "leaving"), expected: true}:
	default:
	}
	<-c.done
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// readLoop applies server traffic until the connection dies.
func (c *Client) readLoop() {
	defer c.closeWith(false)

	for {
		c.ws.SetReadDeadline(time.Now().Add(3 * c.cfg.HeartbeatInterval))

		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Errorw("read error", "error", err)
			}
			return
		}

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			c.logger.Errorw("frame decode error", "error", err)
			continue
		}

		switch frame.Type {
		case protocol.FrameCommand:
			c.handleCommandFrame(frame.Payload)

		case protocol.FrameAssetStart:
			if ts, err := protocol.DecodeTransferStart(frame.Payload); err == nil {
				if err := c.consumer.Start(ts); err != nil {
					c.logger.Warnw("transfer start rejected", "asset", ts.ID, "error", err)
				}
			}

		case protocol.FrameAssetChunk:
			if tc, err := protocol.DecodeTransferChunk(frame.Payload); err == nil {
				if err := c.consumer.Chunk(tc); err != nil {
					c.logger.Warnw("transfer chunk rejected", "asset", tc.ID, "error", err)
				}
			}

		case protocol.FrameControl:
			c.handleControlFrame(frame.Payload)

		case protocol.FrameError:
			if em, err := protocol.DecodeErrorMessage(frame.Payload); err == nil {
				c.handleErrorFrame(em)
			}

		default:
			c.logger.Warnw("unknown frame type", "type", frame.Type)
		}
	}
}

// handleCommandFrame applies one relayed command to the local mirror.
// GetAsset is the exception: it is the server asking this client to
// upload bytes it announced.
func (c *Client) handleCommandFrame(payload []byte) {
	cmd, err := protocol.DecodeCommand(payload)
	if err != nil {
		// Unknown commands from a newer server are skipped, not fatal.
		c.logger.Warnw("command decode error", "error", err)
		return
	}

	switch m := cmd.(type) {
	case *protocol.GetAsset:
		a, err := c.store.Get(m.ID)
		if err != nil {
			c.logger.Warnw("asset requested but not held", "asset", m.ID)
			c.sendFrame(protocol.ErrorFrame(protocol.ErrCodeAssetNotFound, m.ID.String()))
			return
		}
		c.producer.Enqueue(a)
		c.kick()
		return

	case *protocol.SetPolicy:
		c.mu.Lock()
		c.policy = m.Policy
		c.mu.Unlock()

	case *protocol.PlayerConnected:
		c.mu.Lock()
		c.roster[m.Name] = m.Role
		c.mu.Unlock()

	case *protocol.PlayerDisconnected:
		c.mu.Lock()
		delete(c.roster, m.Name)
		c.mu.Unlock()

	default:
		c.campaign.Apply(cmd)
	}

	if c.onCommand != nil {
		c.onCommand(cmd)
	}
}

// handleErrorFrame surfaces errors the server reports. A refused
// GetAsset fails the waiters registered for that asset so callers can
// retry instead of waiting forever.
func (c *Client) handleErrorFrame(em *protocol.ErrorMessage) {
	c.logger.Warnw("server reported error", "code", em.Code, "message", em.Message)

	if em.Code == protocol.ErrCodeAssetNotFound {
		if id, err := asset.ParseID(em.Message); err == nil {
			c.consumer.Fail(id, transfer.ErrAssetUnavailable)
		}
	}
}

func (c *Client) handleControlFrame(payload []byte) {
	ct, data, err := protocol.DecodeControl(payload)
	if err != nil {
		c.logger.Errorw("control decode error", "error", err)
		return
	}

	switch ct {
	case protocol.ControlPing:
		if pp, ok := data.(*protocol.PingPong); ok {
			c.sendFrame(protocol.PongFrame(pp.Timestamp))
		}

	case protocol.ControlClose:
		reason := protocol.CloseNormal
		if cm, ok := data.(*protocol.CloseMessage); ok {
			reason = cm.Reason
			c.logger.Infow("server closing connection", "reason", cm.Reason, "message", cm.Message)
		}
		c.closeWith(reason.Expected())
	}
}

// closeRequest asks the write loop to deliver a close frame and then
// tear the connection down.
type closeRequest struct {
	frame    *protocol.Frame
	expected bool
}

// writeLoop drains the send queue, interleaves asset chunks, and
// heartbeats on its ticker. It is the only goroutine that writes the
// socket; deliberate closes are routed through it.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			if !c.write(frame) {
				return
			}
			c.pumpTransfer()

		case <-c.sendKick:
			c.pumpTransfer()

		case <-ticker.C:
			if !c.write(protocol.HeartbeatFrame(c.cfg.PlayerName)) {
				return
			}

		case req := <-c.closing:
			if data, err := req.frame.Encode(); err == nil {
				c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
				_ = c.ws.WriteMessage(websocket.BinaryMessage, data)
			}
			c.closeWith(req.expected)
			return

		case <-c.done:
			return
		}
	}
}

func (c *Client) pumpTransfer() {
	frame, ok := c.producer.NextFrame()
	if !ok {
		return
	}
	if c.write(frame) && c.producer.Len() > 0 {
		c.kick()
	}
}

func (c *Client) write(frame *protocol.Frame) bool {
	data, err := frame.Encode()
	if err != nil {
		// Truncating the length header would corrupt the stream, so an
		// oversized frame is dropped instead of sent.
		c.logger.Errorw("dropping unencodable frame",
			"type", frame.Type, "payload", len(frame.Payload), "error", err)
		return true
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		if !c.closed.Load() {
			c.logger.Errorw("write error", "error", err)
		}
		c.closeWith(false)
		return false
	}
	return true
}

func (c *Client) sendFrame(frame *protocol.Frame) {
	if c.closed.Load() {
		return
	}
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

func (c *Client) kick() {
	select {
	case c.sendKick <- struct{}{}:
	default:
	}
}

// closeWith tears the connection down once. The shared campaign view is
// cleared on every disconnect; on an unexpected end the empty campaign
// doubles as a fresh personal one so the player can keep working
// offline.
func (c *Client) closeWith(expected bool) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.consumer.Abort()
		c.ws.Close()

		if !expected {
			c.logger.Warnw("connection lost, falling back to personal campaign")
		}
		c.campaign.Reset()
		c.mu.Lock()
		c.roster = make(map[string]protocol.Role)
		c.mu.Unlock()

		if c.onDisconnect != nil {
			c.onDisconnect(expected)
		}
	})
}
