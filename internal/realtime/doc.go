// Package realtime is the session core of the chat service: room
// multiplexing, message fan-out, typing notifications, call presence and
// call signaling for authenticated connections.
//
// The package knows nothing about the wire transport. A transport adapts
// its connections to Conn, feeds client events into Core and turns the
// returned errors into scoped error events.
package realtime
