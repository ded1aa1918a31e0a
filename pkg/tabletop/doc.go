// Package tabletop holds the replicated campaign state: zones, the
// tokens, labels, drawings and fog on them, and the command stream that
// recreates it all on a fresh peer. Server and clients each keep a
// Campaign and converge by applying the same commands in the same order.
package tabletop
