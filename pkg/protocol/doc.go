// Package protocol defines the binary wire protocol for session
// replication.
//
// Every message travels in a Frame: a 4-byte header (type, flags, payload
// length) followed by a payload encoded with the package's Encoder. The
// frame types are:
//
//	Handshake   JoinRequest / JoinResponse, exchanged once per connection
//	Command     one typed operation from the closed command set
//	AssetStart  opens a chunked asset transfer
//	AssetChunk  one segment of asset bytes
//	Control     heartbeat, ping/pong, deliberate close
//	Error       advisory protocol error report
//
// The transport (a WebSocket connection) guarantees ordered, reliable
// delivery per connection, so the protocol carries no acknowledgments and
// no retries: message loss is a fatal connection error, never a retry
// case. Commands from one connection apply in send order; no ordering is
// imposed across connections.
//
// Payload encoding is deliberately simple: big-endian fixed-width
// integers, protobuf-style varints for lengths and counts, and
// length-prefixed strings and byte slices. Decoders validate every length
// prefix against the remaining buffer and an allocation cap, so a hostile
// peer cannot force large allocations with a forged prefix.
package protocol
