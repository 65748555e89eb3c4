// Package signaling is the WebSocket transport in front of the relay hub.
//
// Every accepted connection becomes a relay.Channel. Inbound frames are handed
// to the hub in arrival order; outbound payloads go through a bounded per-
// connection queue drained by a single writer goroutine.
package signaling
