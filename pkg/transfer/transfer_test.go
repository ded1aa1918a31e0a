package transfer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mapforge/mapforge/pkg/asset"
	"github.com/mapforge/mapforge/pkg/protocol"
)

// pump drains the producer into the consumer, simulating the wire.
func pump(t *testing.T, p *Producer, c *Consumer) {
	t.Helper()
	for {
		frame, ok := p.NextFrame()
		if !ok {
			return
		}
		switch frame.Type {
		case protocol.FrameAssetStart:
			ts, err := protocol.DecodeTransferStart(frame.Payload)
			if err != nil {
				t.Fatalf("DecodeTransferStart() error = %v", err)
			}
			if err := c.Start(ts); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
		case protocol.FrameAssetChunk:
			tc, err := protocol.DecodeTransferChunk(frame.Payload)
			if err != nil {
				t.Fatalf("DecodeTransferChunk() error = %v", err)
			}
			if err := c.Chunk(tc); err != nil {
				t.Fatalf("Chunk() error = %v", err)
			}
		default:
			t.Fatalf("unexpected frame type %v", frame.Type)
		}
	}
}

func TestTransferRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 300) // several chunks at size 1024
	src := asset.New(data, "map.png")

	store := asset.NewStore()
	c := NewConsumer(store)

	var completed *asset.Asset
	need := c.Want(src.ID, ListenerFunc{
		OnComplete: func(a *asset.Asset) { completed = a },
		OnFailed: func(id asset.ID, err error) {
			t.Errorf("unexpected failure: %v", err)
		},
	})
	if !need {
		t.Fatal("Want() should request the first time")
	}

	p := NewProducer(1024)
	p.Enqueue(src)
	pump(t, p, c)

	if completed == nil {
		t.Fatal("listener never fired")
	}
	if completed.ID != src.ID || !bytes.Equal(completed.Bytes, data) {
		t.Error("completed asset does not match source")
	}
	if completed.Name != "map.png" {
		t.Errorf("Name = %q, want %q", completed.Name, "map.png")
	}
	if !store.Contains(src.ID) {
		t.Error("asset not installed in store")
	}
}

func TestTransferEmptyAsset(t *testing.T) {
	src := asset.New(nil, "empty.txt")

	store := asset.NewStore()
	c := NewConsumer(store)

	fired := false
	c.Want(src.ID, ListenerFunc{OnComplete: func(a *asset.Asset) { fired = true }})

	p := NewProducer(1024)
	p.Enqueue(src)
	pump(t, p, c)

	if !fired {
		t.Error("listener never fired for zero-byte asset")
	}
	if !store.Contains(src.ID) {
		t.Error("zero-byte asset not installed")
	}
}

func TestTransferInterleaving(t *testing.T) {
	a := asset.New(bytes.Repeat([]byte{0xAA}, 4096), "a.png")
	b := asset.New(bytes.Repeat([]byte{0xBB}, 4096), "b.png")

	p := NewProducer(1024)
	p.Enqueue(a)
	p.Enqueue(b)

	// After both starts, chunks must alternate between the two assets.
	var order []asset.ID
	for {
		frame, ok := p.NextFrame()
		if !ok {
			break
		}
		if frame.Type != protocol.FrameAssetChunk {
			continue
		}
		tc, err := protocol.DecodeTransferChunk(frame.Payload)
		if err != nil {
			t.Fatalf("DecodeTransferChunk() error = %v", err)
		}
		order = append(order, tc.ID)
	}

	if len(order) != 8 {
		t.Fatalf("chunk count = %d, want 8", len(order))
	}
	sawSwitch := false
	for i := 1; i < len(order); i++ {
		if order[i] != order[i-1] {
			sawSwitch = true
			break
		}
	}
	if !sawSwitch {
		t.Error("chunks never interleaved between queued assets")
	}
}

func TestTransferCorruptionRejected(t *testing.T) {
	data := []byte("original content")
	src := asset.New(data, "file.bin")

	store := asset.NewStore()
	c := NewConsumer(store)

	var failedErr error
	c.Want(src.ID, ListenerFunc{
		OnComplete: func(a *asset.Asset) { t.Error("corrupt transfer completed") },
		OnFailed:   func(id asset.ID, err error) { failedErr = err },
	})

	if err := c.Start(&protocol.TransferStart{ID: src.ID, Name: src.Name, TotalSize: src.Size()}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	flipped := append([]byte(nil), data...)
	flipped[0] ^= 0xFF
	err := c.Chunk(&protocol.TransferChunk{ID: src.ID, Offset: 0, Data: flipped})
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("Chunk() error = %v, want ErrDigestMismatch", err)
	}

	if !errors.Is(failedErr, ErrDigestMismatch) {
		t.Errorf("listener error = %v, want ErrDigestMismatch", failedErr)
	}
	if store.Contains(src.ID) {
		t.Error("corrupt asset reached the store")
	}
}

func TestTransferBadOffset(t *testing.T) {
	src := asset.New(bytes.Repeat([]byte{0x11}, 100), "gap.bin")

	c := NewConsumer(asset.NewStore())
	if err := c.Start(&protocol.TransferStart{ID: src.ID, Name: src.Name, TotalSize: src.Size()}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Skipping ahead must fail the transfer, not assemble garbage.
	err := c.Chunk(&protocol.TransferChunk{ID: src.ID, Offset: 50, Data: src.Bytes[50:]})
	if !errors.Is(err, ErrBadOffset) {
		t.Errorf("Chunk() error = %v, want ErrBadOffset", err)
	}
	if c.Pending(src.ID) {
		t.Error("transfer still pending after bad offset")
	}
}

func TestWantCoalesces(t *testing.T) {
	id := asset.Compute([]byte("wanted by many"))
	c := NewConsumer(asset.NewStore())

	first := c.Want(id, ListenerFunc{})
	second := c.Want(id, ListenerFunc{})

	if !first {
		t.Error("first Want() should request")
	}
	if second {
		t.Error("second Want() should coalesce, not request again")
	}
}

func TestWantAlreadyHeld(t *testing.T) {
	store := asset.NewStore()
	id := store.Put([]byte("already here"), "local.png")

	c := NewConsumer(store)

	fired := false
	need := c.Want(id, ListenerFunc{OnComplete: func(a *asset.Asset) { fired = true }})

	if need {
		t.Error("Want() requested an asset the store already holds")
	}
	if !fired {
		t.Error("listener did not fire immediately for a held asset")
	}
}

func TestAbortFailsPending(t *testing.T) {
	data := bytes.Repeat([]byte{0x22}, 2048)
	src := asset.New(data, "partial.bin")

	store := asset.NewStore()
	c := NewConsumer(store)

	var failedErr error
	c.Want(src.ID, ListenerFunc{
		OnComplete: func(a *asset.Asset) { t.Error("aborted transfer completed") },
		OnFailed:   func(id asset.ID, err error) { failedErr = err },
	})

	if err := c.Start(&protocol.TransferStart{ID: src.ID, Name: src.Name, TotalSize: src.Size()}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Chunk(&protocol.TransferChunk{ID: src.ID, Offset: 0, Data: data[:1024]}); err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	c.Abort()

	if !errors.Is(failedErr, ErrTransferAborted) {
		t.Errorf("listener error = %v, want ErrTransferAborted", failedErr)
	}
	if store.Contains(src.ID) {
		t.Error("partial asset reached the store")
	}
	if c.Pending(src.ID) {
		t.Error("transfer still pending after Abort")
	}
}

func TestProducerCancel(t *testing.T) {
	src := asset.New(bytes.Repeat([]byte{0x33}, 4096), "cancel.bin")

	p := NewProducer(1024)
	p.Enqueue(src)
	p.Cancel(src.ID)

	if _, ok := p.NextFrame(); ok {
		t.Error("NextFrame() yielded a frame after Cancel")
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestOversizedAnnouncementRejected(t *testing.T) {
	c := NewConsumer(asset.NewStore())
	err := c.Start(&protocol.TransferStart{
		ID:        asset.Compute([]byte("huge")),
		Name:      "huge.bin",
		TotalSize: protocol.MaxAssetSize + 1,
	})
	if !errors.Is(err, ErrOversizedAsset) {
		t.Errorf("Start() error = %v, want ErrOversizedAsset", err)
	}
}

func TestProducerChunkSizeClamped(t *testing.T) {
	if p := NewProducer(protocol.MaxPayloadSize * 2); p.chunkSize != protocol.MaxChunkSize {
		t.Errorf("chunkSize = %d, want clamped to %d", p.chunkSize, protocol.MaxChunkSize)
	}
	if p := NewProducer(0); p.chunkSize != protocol.DefaultChunkSize {
		t.Errorf("chunkSize = %d, want DefaultChunkSize", p.chunkSize)
	}
}

func TestConsumerFailNotifiesListeners(t *testing.T) {
	store := asset.NewStore()
	c := NewConsumer(store)
	id := asset.Compute([]byte("never arrives"))

	failed := make(chan error, 1)
	c.Want(id, ListenerFunc{
		OnFailed: func(_ asset.ID, err error) { failed <- err },
	})

	c.Fail(id, ErrAssetUnavailable)

	select {
	case err := <-failed:
		if !errors.Is(err, ErrAssetUnavailable) {
			t.Errorf("failure = %v, want ErrAssetUnavailable", err)
		}
	default:
		t.Fatal("listener not notified")
	}
	if c.Pending(id) {
		t.Error("transfer still pending after Fail")
	}
}
