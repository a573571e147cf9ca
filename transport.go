package phxsocket

// TransportState is the connection state reported by a Transport.
type TransportState int

const (
	TransportConnecting TransportState = iota
	TransportOpen
	TransportClosing
	TransportClosed
)

// String returns the string representation of the transport state.
func (ts TransportState) String() string {
	switch ts {
	case TransportConnecting:
		return "connecting"
	case TransportOpen:
		return "open"
	case TransportClosing:
		return "closing"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the bidirectional message-framed connection the socket
// manager drives. The default implementation is WebsocketTransport; a
// custom implementation can be injected through Options for testing.
//
// Open and Close are asynchronous: completion is reported through the
// attached TransportDelegate, never as a return value.
type Transport interface {
	// Open asynchronously establishes the connection to the configured
	// URL.
	Open()

	// Close asynchronously tears the connection down.
	Close()

	// Send writes one text frame. It returns an error if the transport
	// is not connected or the write fails.
	Send(data string) error

	// SetURL sets the endpoint used by the next Open.
	SetURL(url string)

	// SetDelegate attaches the observer notified of transport events.
	// A nil delegate detaches; subsequent events are discarded.
	SetDelegate(d TransportDelegate)

	// State reports the current connection state.
	State() TransportState
}

// TransportDelegate receives transport notifications. The methods are
// invoked on transport-owned goroutines; implementations must hand the
// work off before touching shared state.
type TransportDelegate interface {
	TransportDidOpen()
	TransportDidReceive(message string)
	TransportDidError(err error)
	TransportDidClose(code int, reason string, wasClean bool)
}
