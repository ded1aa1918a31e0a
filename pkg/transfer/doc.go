// Package transfer moves assets between peers in bounded chunks.
//
// A Producer queues outbound assets and hands the connection's write loop
// one frame at a time, interleaving queued assets round-robin so a large
// file never starves other traffic. A Consumer reassembles inbound
// chunks, verifies the result against its content digest, and installs it
// into the asset store only on a match. Interested parties register a
// Listener with Want; concurrent interest in the same asset coalesces
// onto a single transfer.
package transfer
