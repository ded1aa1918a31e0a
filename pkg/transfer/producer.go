package transfer

import (
	"sync"

	"github.com/mapforge/mapforge/pkg/asset"
	"github.com/mapforge/mapforge/pkg/protocol"
)

// sendState tracks one outbound transfer: the asset being streamed and
// how far into it the next chunk starts. started flips once the
// TransferStart frame has been emitted.
type sendState struct {
	a       *asset.Asset
	offset  int64
	started bool
}

// Producer streams queued assets to one connection in fixed-size chunks.
// The connection's write loop pulls frames with NextFrame between
// ordinary messages, so a large asset never monopolizes the socket.
// Multiple queued assets are interleaved round-robin.
type Producer struct {
	chunkSize int

	mu    sync.Mutex
	queue []*sendState
	index map[asset.ID]*sendState
}

// NewProducer creates a Producer emitting chunks of chunkSize bytes.
// A non-positive chunkSize falls back to protocol.DefaultChunkSize; one
// too large for a chunk frame is clamped to protocol.MaxChunkSize.
func NewProducer(chunkSize int) *Producer {
	if chunkSize <= 0 {
		chunkSize = protocol.DefaultChunkSize
	}
	if chunkSize > protocol.MaxChunkSize {
		chunkSize = protocol.MaxChunkSize
	}
	return &Producer{
		chunkSize: chunkSize,
		index:     make(map[asset.ID]*sendState),
	}
}

// Enqueue schedules an asset for streaming. Queueing an asset already in
// flight is a no-op; the peer will receive it exactly once.
func (p *Producer) Enqueue(a *asset.Asset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.index[a.ID]; ok {
		return
	}
	st := &sendState{a: a}
	p.index[a.ID] = st
	p.queue = append(p.queue, st)
}

// Cancel drops a queued asset. Chunks already written stay written; the
// receiving side will fail the transfer on teardown or timeout.
func (p *Producer) Cancel(id asset.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.index[id]
	if !ok {
		return
	}
	delete(p.index, id)
	for i, q := range p.queue {
		if q == st {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
}

// Len reports how many assets are queued or in flight.
func (p *Producer) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// NextFrame returns the next transfer frame to write, or ok false when
// nothing is queued. The first pull for an asset yields its
// TransferStart; subsequent pulls yield chunks. A finished asset is
// rotated out and the next queued asset takes over, so concurrent
// transfers advance one chunk per pull each.
func (p *Producer) NextFrame() (*protocol.Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return nil, false
	}
	st := p.queue[0]

	if !st.started {
		st.started = true
		ts := &protocol.TransferStart{
			ID:        st.a.ID,
			Name:      st.a.Name,
			TotalSize: st.a.Size(),
		}
		if ts.TotalSize == 0 {
			p.dequeue(st)
		}
		return ts.Frame(), true
	}

	remaining := st.a.Size() - st.offset
	n := int64(p.chunkSize)
	if n > remaining {
		n = remaining
	}
	tc := &protocol.TransferChunk{
		ID:     st.a.ID,
		Offset: st.offset,
		Data:   st.a.Bytes[st.offset : st.offset+n],
	}
	st.offset += n

	if st.offset == st.a.Size() {
		p.dequeue(st)
	} else {
		// Round-robin: move to the back so other assets interleave.
		p.queue = append(p.queue[1:], st)
	}
	return tc.Frame(), true
}

// dequeue removes st from the front of the queue. Caller holds p.mu.
func (p *Producer) dequeue(st *sendState) {
	p.queue = p.queue[1:]
	delete(p.index, st.a.ID)
}
