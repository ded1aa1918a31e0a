package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mapforge/mapforge/pkg/asset"
	"github.com/mapforge/mapforge/pkg/protocol"
	"github.com/mapforge/mapforge/pkg/transfer"
)

// Conn is one connected player. The read loop is the only reader of the
// socket; the write loop is the only writer. Everything else talks to
// the connection through Send and the producer queue.
type Conn struct {
	server *Server
	ws     *websocket.Conn
	logger *zap.SugaredLogger

	name string
	role protocol.Role

	send     chan *protocol.Frame
	sendKick chan struct{}     // woken when the producer gains work
	closing  chan closeRequest // a queued close ends the connection

	producer *transfer.Producer
	consumer *transfer.Consumer

	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	// closeReason records why the connection ended, for the roster
	// broadcast. Written once before done is closed.
	closeReason protocol.CloseReason
}

func newConn(s *Server, ws *websocket.Conn, name string, role protocol.Role) *Conn {
	cfg := s.cfg.SessionConfig
	return &Conn{
		server:      s,
		ws:          ws,
		logger:      s.logger.With("player", name),
		name:        name,
		role:        role,
		send:        make(chan *protocol.Frame, cfg.SendQueueSize),
		sendKick:    make(chan struct{}, 1),
		closing:     make(chan closeRequest, 1),
		producer:    transfer.NewProducer(cfg.ChunkSize),
		consumer:    transfer.NewConsumer(s.store),
		done:        make(chan struct{}),
		closeReason: protocol.CloseError,
	}
}

// Name returns the player name bound at handshake.
func (c *Conn) Name() string { return c.name }

// Role returns the role bound at handshake.
func (c *Conn) Role() protocol.Role { return c.role }

// Send queues a frame for delivery. A connection whose queue is full is
// closed: a stalled client must not block the room.
func (c *Conn) Send(frame *protocol.Frame) {
	if c.closed.Load() {
		return
	}
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.logger.Warnw("send queue full, dropping client")
		c.closeWith(protocol.CloseError)
	}
}

// SendCommand encodes and queues a command.
func (c *Conn) SendCommand(cmd protocol.Command) {
	c.Send(protocol.CommandFrame(cmd))
}

// QueueAsset schedules an asset stream to this client.
func (c *Conn) QueueAsset(a *asset.Asset) {
	c.producer.Enqueue(a)
	c.kick()
}

// kick wakes the write loop so it polls the producer.
func (c *Conn) kick() {
	select {
	case c.sendKick <- struct{}{}:
	default:
	}
}

// start launches the connection loops.
func (c *Conn) start() {
	go c.readLoop()
	go c.writeLoop()
}

// readLoop pulls frames off the socket until it dies. Commands go to
// the dispatcher; transfer frames feed the consumer; control frames are
// handled inline.
func (c *Conn) readLoop() {
	defer c.closeWith(protocol.CloseError)

	cfg := c.server.cfg.SessionConfig
	c.ws.SetReadLimit(cfg.MaxMessageSize)

	for {
		c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Errorw("read error", "error", err)
			}
			return
		}
		c.server.metrics.bytesReceived.Add(float64(len(msg)))

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			c.logger.Errorw("frame decode error", "error", err)
			c.Send(protocol.ErrorFrame(protocol.ErrCodeInvalidFrame, "malformed frame"))
			continue
		}

		switch frame.Type {
		case protocol.FrameCommand:
			c.handleCommandFrame(frame.Payload)

		case protocol.FrameAssetStart:
			c.handleAssetStart(frame.Payload)

		case protocol.FrameAssetChunk:
			c.handleAssetChunk(frame.Payload)

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

func (c *Conn) handleCommandFrame(payload []byte) {
	cmd, err := protocol.DecodeCommand(payload)
	if err != nil {
		c.logger.Errorw("command decode error", "error", err)
		c.Send(protocol.ErrorFrame(protocol.ErrCodeInvalidCommand, "malformed command"))
		return
	}
	c.server.dispatch(c, cmd)
}

func (c *Conn) handleAssetStart(payload []byte) {
	ts, err := protocol.DecodeTransferStart(payload)
	if err != nil {
		c.logger.Errorw("transfer start decode error", "error", err)
		return
	}
	if err := c.consumer.Start(ts); err != nil {
		c.logger.Warnw("transfer start rejected", "asset", ts.ID, "error", err)
	}
}

func (c *Conn) handleAssetChunk(payload []byte) {
	tc, err := protocol.DecodeTransferChunk(payload)
	if err != nil {
		c.logger.Errorw("transfer chunk decode error", "error", err)
		return
	}
	if err := c.consumer.Chunk(tc); err != nil {
		c.logger.Warnw("transfer chunk rejected", "asset", tc.ID, "error", err)
		c.Send(protocol.ErrorFrame(protocol.ErrCodeDigestMismatch, err.Error()))
	}
}

// handleErrorFrame surfaces errors the client reports. An uploader that
// cannot supply an announced asset fails the waiters for that asset.
func (c *Conn) handleErrorFrame(em *protocol.ErrorMessage) {
	c.logger.Warnw("client reported error", "code", em.Code, "message", em.Message)

	if em.Code == protocol.ErrCodeAssetNotFound {
		if id, err := asset.ParseID(em.Message); err == nil {
			c.consumer.Fail(id, transfer.ErrAssetUnavailable)
		}
	}
}

func (c *Conn) handleControlFrame(payload []byte) {
	ct, data, err := protocol.DecodeControl(payload)
	if err != nil {
		c.logger.Errorw("control decode error", "error", err)
		return
	}

	switch ct {
	case protocol.ControlHeartbeat:
		// The read deadline reset on arrival is the liveness signal;
		// nothing else to do.

	case protocol.ControlPing:
		if pp, ok := data.(*protocol.PingPong); ok {
			c.Send(protocol.PongFrame(pp.Timestamp))
		}

	case protocol.ControlPong:
		c.logger.Debugw("received pong")

	case protocol.ControlClose:
		reason := protocol.CloseNormal
		if cm, ok := data.(*protocol.CloseMessage); ok {
			reason = cm.Reason
			c.logger.Infow("client closing", "reason", cm.Reason, "message", cm.Message)
		}
		c.closeWith(reason)
	}
}

// closeRequest asks the write loop to deliver a close message and then
// tear the connection down.
type closeRequest struct {
	frame  *protocol.Frame
	reason protocol.CloseReason
}

// writeLoop drains the send queue and interleaves asset chunks, one per
// queued frame, so bulk transfers never starve commands. It is the only
// goroutine that writes the socket; close frames are routed through it.
func (c *Conn) writeLoop() {
	cfg := c.server.cfg.SessionConfig

	for {
		select {
		case frame := <-c.send:
			if !c.write(frame, cfg.WriteTimeout) {
				return
			}
			c.pumpTransfer(cfg.WriteTimeout)

		case <-c.sendKick:
			c.pumpTransfer(cfg.WriteTimeout)

		case req := <-c.closing:
			c.write(req.frame, cfg.WriteTimeout)
			c.closeWith(req.reason)
			return

		case <-c.done:
			return
		}
	}
}

// pumpTransfer writes one pending transfer frame, if any, and re-kicks
// itself while more remain.
func (c *Conn) pumpTransfer(timeout time.Duration) {
	frame, ok := c.producer.NextFrame()
	if !ok {
		return
	}
	if frame.Type == protocol.FrameAssetChunk {
		c.server.metrics.assetBytesStreamed.Add(float64(len(frame.Payload)))
	}
	if c.write(frame, timeout) && c.producer.Len() > 0 {
		c.kick()
	}
}

func (c *Conn) write(frame *protocol.Frame, timeout time.Duration) bool {
	data, err := frame.Encode()
	if err != nil {
		// Truncating the length header would corrupt the stream, so an
		// oversized frame is dropped instead of sent.
		c.logger.Errorw("dropping unencodable frame",
			"type", frame.Type, "payload", len(frame.Payload), "error", err)
		return true
	}
	c.ws.SetWriteDeadline(time.Now().Add(timeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.logger.Errorw("write error", "error", err)
		c.closeWith(protocol.CloseError)
		return false
	}
	c.server.metrics.bytesSent.Add(float64(len(data)))
	return true
}

// closeWith tears the connection down once, recording the reason for
// the roster broadcast. Pending inbound transfers are aborted and never
// reach the store.
func (c *Conn) closeWith(reason protocol.CloseReason) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeReason = reason
		close(c.done)
		c.consumer.Abort()
		c.ws.Close()
		c.server.removeConn(c)
	})
}

// Kick disconnects the client with a close message. Used when the GM
// boots a player and at server shutdown. The close frame is handed to
// the write loop, which owns the socket; writing it here would race the
// loop.
func (c *Conn) Kick(reason protocol.CloseReason, message string) {
	if c.closed.Load() {
		return
	}
	select {
	case c.closing <- closeRequest{frame: protocol.CloseFrame(reason, message), reason: reason}:
	default:
		// A close is already queued.
	}
}
