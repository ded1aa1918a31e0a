package asset

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
)

// IDSize is the size of an asset ID in bytes (an MD5 digest).
const IDSize = md5.Size

// ID is the content digest of an asset's bytes. Two assets with identical
// bytes have identical IDs; the ID is the deduplication key and never changes
// once computed.
type ID [IDSize]byte

// Compute returns the content ID for the given bytes.
func Compute(data []byte) ID {
	return md5.Sum(data)
}

// ParseID parses a hex-encoded asset ID.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != IDSize {
		return id, errors.New("asset: bad id length")
	}
	copy(id[:], b)
	return id, nil
}

// String returns the hex encoding of the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero returns true if the ID is the zero value (no asset referenced).
func (id ID) IsZero() bool {
	return id == ID{}
}

// Asset is an immutable named blob addressed by the digest of its bytes.
// A content change produces a new Asset with a new ID; existing assets are
// never mutated in place.
type Asset struct {
	ID    ID
	Name  string
	Bytes []byte
}

// New creates an Asset from raw bytes, computing its content ID.
func New(data []byte, name string) *Asset {
	return &Asset{
		ID:    Compute(data),
		Name:  name,
		Bytes: data,
	}
}

// Size returns the asset's size in bytes.
func (a *Asset) Size() int64 {
	return int64(len(a.Bytes))
}
