package protocol

import "github.com/mapforge/mapforge/pkg/asset"

// DefaultChunkSize is the segment size for chunked asset transfer. It must
// leave headroom for the chunk header within MaxPayloadSize.
const DefaultChunkSize = 32 * 1024

// MaxChunkSize is the largest chunk a TransferChunk frame can carry once
// the asset ID, offset, and length prefix are accounted for.
const MaxChunkSize = MaxPayloadSize - 35

// MaxAssetSize bounds the total size a transfer will accept. Larger
// announcements are rejected before any buffer is allocated.
const MaxAssetSize int64 = 512 * 1024 * 1024

// TransferStart opens a chunked asset transfer on a connection. The end of
// the transfer is implicit: it completes when TotalSize bytes have arrived.
type TransferStart struct {
	ID        asset.ID
	Name      string
	TotalSize int64
}

// TransferChunk carries one segment of asset bytes. Segments arrive in
// order per connection; Offset is carried anyway so the consumer can
// detect a desynchronized stream instead of assembling garbage.
type TransferChunk struct {
	ID     asset.ID
	Offset int64
	Data   []byte
}

// Frame wraps the TransferStart in an asset-start frame.
func (ts *TransferStart) Frame() *Frame {
	return NewFrame(FrameAssetStart, EncodeTransferStart(ts))
}

// Frame wraps the TransferChunk in an asset-chunk frame.
func (tc *TransferChunk) Frame() *Frame {
	return NewFrame(FrameAssetChunk, EncodeTransferChunk(tc))
}

// EncodeTransferStart encodes a TransferStart to bytes.
func EncodeTransferStart(ts *TransferStart) []byte {
	e := NewEncoder()
	e.writeAssetID(ts.ID)
	e.WriteString(ts.Name)
	e.WriteInt64(ts.TotalSize)
	return e.Bytes()
}

// DecodeTransferStart decodes a TransferStart from bytes.
func DecodeTransferStart(data []byte) (*TransferStart, error) {
	d := NewDecoder(data)
	ts := &TransferStart{}
	var err error

	if ts.ID, err = d.readAssetID(); err != nil {
		return nil, err
	}
	if ts.Name, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ts.TotalSize, err = d.ReadInt64(); err != nil {
		return nil, err
	}
	return ts, nil
}

// EncodeTransferChunk encodes a TransferChunk to bytes.
func EncodeTransferChunk(tc *TransferChunk) []byte {
	e := NewEncoderWithCap(asset.IDSize + 8 + 10 + len(tc.Data))
	e.writeAssetID(tc.ID)
	e.WriteInt64(tc.Offset)
	e.WriteLenBytes(tc.Data)
	return e.Bytes()
}

// DecodeTransferChunk decodes a TransferChunk from bytes.
func DecodeTransferChunk(data []byte) (*TransferChunk, error) {
	d := NewDecoder(data)
	tc := &TransferChunk{}
	var err error

	if tc.ID, err = d.readAssetID(); err != nil {
		return nil, err
	}
	if tc.Offset, err = d.ReadInt64(); err != nil {
		return nil, err
	}
	if tc.Data, err = d.ReadLenBytes(); err != nil {
		return nil, err
	}
	return tc, nil
}
