// Package client connects a player to a campaign server. It keeps a
// local mirror of the campaign by applying the server's command stream,
// pushes the player's own actions upstream, and fetches assets on
// demand into a local content-addressed store. If the link drops
// without a deliberate close, the mirror resets to a fresh personal
// campaign so play can continue offline.
package client
