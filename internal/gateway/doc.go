// Package gateway is the connection manager of discussd.
//
// Each accepted connection becomes a Client. A client reads one line at a
// time, dispatches it and writes the response before reading the next line,
// so responses on one connection always follow request order. Server pushes
// from the relay are queued on a bounded per-client channel and written by a
// separate goroutine; a full queue drops the push.
//
// Plain TCP peers and WebSocket peers (one text frame per line, served by the
// admin HTTP server at /ws) are handled by the same Client code through the
// LineConn interface. The peer id of a connection is its remote address.
//
// When a connection ends its hub entry and its identity registry entry are
// removed, which signs the user out of that peer.
package gateway
