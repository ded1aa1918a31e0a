// Package server hosts a campaign session over WebSocket.
//
// The server is the authority: it validates each command against the
// sender's role and the current policy, applies it to its own campaign
// state, and replays it to every other client. Joining clients get the
// whole campaign replayed, so a fresh connection converges without any
// snapshot format. Assets travel separately from commands, streamed in
// chunks that interleave with normal traffic.
package server
