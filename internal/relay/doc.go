// Package relay implements the rendezvous core: the role registry, the
// per-role message store, the application keepalive and the dispatcher that
// routes every inbound signaling message.
//
// All state is owned by a single Hub goroutine. Transports hand the hub
// channel events (connect, message, disconnect) and the hub writes back
// through Channel.Send, so Registry and Store are never touched concurrently.
package relay
