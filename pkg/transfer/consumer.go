package transfer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mapforge/mapforge/pkg/asset"
	"github.com/mapforge/mapforge/pkg/protocol"
)

// Consumer errors.
var (
	ErrDigestMismatch  = errors.New("transfer: reassembled digest does not match requested id")
	ErrNoSuchTransfer  = errors.New("transfer: chunk for unknown transfer")
	ErrBadOffset       = errors.New("transfer: chunk offset out of sequence")
	ErrOversizedAsset   = errors.New("transfer: announced size exceeds limit")
	ErrTransferAborted  = errors.New("transfer: connection closed mid-transfer")
	ErrAssetUnavailable = errors.New("transfer: peer does not hold the asset")
)

// Listener receives the outcome of an asset transfer. Callbacks fire on
// the consumer's connection goroutine; implementations must not block.
type Listener interface {
	AssetComplete(a *asset.Asset)
	AssetFailed(id asset.ID, err error)
}

// ListenerFunc adapts a pair of functions to the Listener interface.
// Either function may be nil.
type ListenerFunc struct {
	OnComplete func(a *asset.Asset)
	OnFailed   func(id asset.ID, err error)
}

func (l ListenerFunc) AssetComplete(a *asset.Asset) {
	if l.OnComplete != nil {
		l.OnComplete(a)
	}
}

func (l ListenerFunc) AssetFailed(id asset.ID, err error) {
	if l.OnFailed != nil {
		l.OnFailed(id, err)
	}
}

// receiveState tracks one in-flight inbound transfer. There is at most one
// per asset ID on a given consumer (i.e. per connection); concurrent
// requests for the same pending ID attach as extra listeners instead of
// opening a second transfer.
type receiveState struct {
	name     string
	expected int64
	buf      []byte // grows to expected; len(buf) is bytes received so far
}

// Consumer reassembles chunked asset transfers arriving on one connection.
// Completed assets are verified against their content digest and installed
// into the store; a corrupt or aborted transfer never touches the store.
//
// Consumer methods are safe for concurrent use, though in practice a
// connection's read loop is the only caller of Start and Chunk.
type Consumer struct {
	store *asset.Store

	mu        sync.Mutex
	pending   map[asset.ID]*receiveState
	listeners map[asset.ID][]Listener
}

// NewConsumer creates a Consumer that installs completed assets into store.
func NewConsumer(store *asset.Store) *Consumer {
	return &Consumer{
		store:     store,
		pending:   make(map[asset.ID]*receiveState),
		listeners: make(map[asset.ID][]Listener),
	}
}

// Want registers interest in an asset. If the asset is already held
// locally the listener fires immediately and Want reports needRequest
// false. If a transfer for the ID is already pending the listener is
// attached to it and needRequest is false: only the first caller should
// send a GetAsset to the peer.
func (c *Consumer) Want(id asset.ID, l Listener) (needRequest bool) {
	if a, err := c.store.Get(id); err == nil {
		if l != nil {
			l.AssetComplete(a)
		}
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, pending := c.pending[id]
	already := len(c.listeners[id]) > 0
	if l != nil {
		c.listeners[id] = append(c.listeners[id], l)
	}
	// A request is needed only for the first expression of interest.
	return !pending && !already
}

// Pending reports whether a transfer for id is in flight.
func (c *Consumer) Pending(id asset.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// Start opens an inbound transfer announced by the peer. Starting an
// already-pending ID resets its buffer: the peer has restarted the send
// and the previous partial data is void.
func (c *Consumer) Start(ts *protocol.TransferStart) error {
	if ts.TotalSize < 0 || ts.TotalSize > protocol.MaxAssetSize {
		return fmt.Errorf("%w: %d bytes", ErrOversizedAsset, ts.TotalSize)
	}

	c.mu.Lock()
	c.pending[ts.ID] = &receiveState{
		name:     ts.Name,
		expected: ts.TotalSize,
		buf:      make([]byte, 0, ts.TotalSize),
	}
	c.mu.Unlock()

	// Zero-byte assets complete immediately; no chunks will follow.
	if ts.TotalSize == 0 {
		return c.finish(ts.ID)
	}
	return nil
}

// Chunk appends one segment to its transfer. The wire delivers segments in
// order per connection, so the offset must equal the bytes received so
// far; anything else means the stream is desynchronized and the transfer
// is failed rather than assembled wrong.
func (c *Consumer) Chunk(tc *protocol.TransferChunk) error {
	c.mu.Lock()
	st, ok := c.pending[tc.ID]
	if !ok {
		c.mu.Unlock()
		return ErrNoSuchTransfer
	}

	if tc.Offset != int64(len(st.buf)) || int64(len(st.buf)+len(tc.Data)) > st.expected {
		delete(c.pending, tc.ID)
		c.mu.Unlock()
		c.fail(tc.ID, ErrBadOffset)
		return ErrBadOffset
	}

	st.buf = append(st.buf, tc.Data...)
	done := int64(len(st.buf)) == st.expected
	c.mu.Unlock()

	if done {
		return c.finish(tc.ID)
	}
	return nil
}

// finish verifies the assembled bytes and installs the asset on success.
func (c *Consumer) finish(id asset.ID) error {
	c.mu.Lock()
	st, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return ErrNoSuchTransfer
	}
	delete(c.pending, id)
	c.mu.Unlock()

	if asset.Compute(st.buf) != id {
		c.fail(id, ErrDigestMismatch)
		return ErrDigestMismatch
	}

	a := &asset.Asset{ID: id, Name: st.name, Bytes: st.buf}
	c.store.PutAsset(a)

	for _, l := range c.takeListeners(id) {
		l.AssetComplete(a)
	}
	return nil
}

// Fail abandons any transfer of id, pending or merely awaited, and
// notifies its listeners. Used when the peer reports it cannot supply
// the asset.
func (c *Consumer) Fail(id asset.ID, err error) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
	c.fail(id, err)
}

// fail discards a transfer and notifies its listeners.
func (c *Consumer) fail(id asset.ID, err error) {
	for _, l := range c.takeListeners(id) {
		l.AssetFailed(id, err)
	}
}

func (c *Consumer) takeListeners(id asset.ID) []Listener {
	c.mu.Lock()
	ls := c.listeners[id]
	delete(c.listeners, id)
	c.mu.Unlock()
	return ls
}

// Abort discards every pending transfer and notifies all listeners of
// failure. Called when the owning connection is torn down; no partial
// asset ever reaches the store.
func (c *Consumer) Abort() {
	c.mu.Lock()
	ids := make([]asset.ID, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.pending = make(map[asset.ID]*receiveState)
	c.mu.Unlock()

	for _, id := range ids {
		c.fail(id, ErrTransferAborted)
	}
	// Listeners attached before a Start arrived are failed too.
	c.mu.Lock()
	rest := make([]asset.ID, 0, len(c.listeners))
	for id := range c.listeners {
		rest = append(rest, id)
	}
	c.mu.Unlock()
	for _, id := range rest {
		c.fail(id, ErrTransferAborted)
	}
}
