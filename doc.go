// Package phxsocket implements the client side of the Phoenix Channels
// socket protocol: a single persistent WebSocket connection multiplexing
// any number of topics, with periodic heartbeats, automatic reconnection
// on unexpected close, and routing of decoded messages to attached
// channels.
//
// The package covers socket-level session management only. Channel
// join/leave semantics live behind the Channel interface and are owned
// by the caller; the socket routes events to them by topic and notifies
// them of protocol-level errors.
//
// All socket state is owned by a small serialized worker pool (size 1 by
// default). Transport notifications, timer firings and public mutations
// become queued tasks, which is what keeps the connection state machine
// race-free without locking individual fields.
package phxsocket
