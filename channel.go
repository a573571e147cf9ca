package phxsocket

// Channel is one joined topic on the multiplexed connection. Channel
// objects are owned by the caller; the socket holds them only to route
// decoded events by topic and to broadcast protocol-level errors. A
// topic may have several attached channels, and every one of them
// receives matching events in attachment order.
//
// Implementations must be comparable, in practice pointer types:
// RemoveChannel matches the attached value by interface equality.
type Channel interface {
	// Topic returns the topic string this channel is bound to.
	Topic() string

	// TriggerEvent delivers a routed event to the channel. ref is NoRef
	// when the message carried no reply reference.
	TriggerEvent(event string, payload interface{}, ref int64)
}

// SocketDelegate is an optional higher-level observer of the socket
// lifecycle, notified after the registered callbacks. The socket does
// not own the delegate; SetDelegate(nil) detaches it.
type SocketDelegate interface {
	SocketDidOpen()
	SocketDidClose(reason string)
	SocketDidReceiveError(err error)
}
