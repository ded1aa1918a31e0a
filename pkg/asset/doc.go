// Package asset implements the content-addressed asset store.
//
// Assets are immutable named blobs keyed by the MD5 digest of their bytes.
// Identical bytes always produce the identical ID, which is what makes
// deduplicated transfer possible: a peer that already holds an ID never
// needs the bytes again.
//
// The Store keeps everything in memory for the lifetime of a session and
// can optionally spill to a Cache backend (local disk or S3). Entries are
// write-once, so the store needs nothing more than a single lock around
// insert and lookup.
package asset
