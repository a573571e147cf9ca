package phxsocket

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("transport not connected")

// WebsocketTransport is the default Transport, backed by
// gorilla/websocket. Open dials asynchronously and starts a read loop;
// all outcomes are reported through the attached delegate.
type WebsocketTransport struct {
	dialer       *websocket.Dialer
	headers      http.Header
	writeTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	url      string
	conn     *websocket.Conn
	state    TransportState
	delegate TransportDelegate

	// Set by Close while a dial is in flight; the dial goroutine
	// observes it on return and settles the teardown.
	closeRequested bool
}

// WebsocketOption configures a WebsocketTransport.
type WebsocketOption func(*WebsocketTransport)

// WithRequestHeader sets HTTP headers sent with the upgrade request.
func WithRequestHeader(headers http.Header) WebsocketOption {
	return func(t *WebsocketTransport) {
		t.headers = headers
	}
}

// WithDialer replaces the default websocket dialer.
func WithDialer(dialer *websocket.Dialer) WebsocketOption {
	return func(t *WebsocketTransport) {
		t.dialer = dialer
	}
}

// NewWebsocketTransport creates a transport for the given endpoint.
func NewWebsocketTransport(url string, opts ...WebsocketOption) *WebsocketTransport {
	t := &WebsocketTransport{
		url:          url,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		writeTimeout: 10 * time.Second,
		logger:       slog.Default(),
		state:        TransportClosed,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Open dials the configured URL on a background goroutine. A no-op
// while a connection attempt, an open connection or a teardown is
// underway.
func (t *WebsocketTransport) Open() {
	t.mu.Lock()
	if t.state != TransportClosed {
		t.mu.Unlock()
		return
	}
	t.state = TransportConnecting
	url := t.url
	t.mu.Unlock()

	go t.dial(url)
}

func (t *WebsocketTransport) dial(url string) {
	conn, _, err := t.dialer.Dial(url, t.headers)
	if err != nil {
		t.mu.Lock()
		t.closeRequested = false
		t.state = TransportClosed
		d := t.delegate
		t.mu.Unlock()

		t.logger.Debug("websocket dial failed", "url", url, "error", err)
		if d != nil {
			d.TransportDidError(fmt.Errorf("dial %s: %w", url, err))
		}
		return
	}

	t.mu.Lock()
	if t.closeRequested {
		// Close raced the dial. Drop the fresh connection instead of
		// transitioning to open.
		t.closeRequested = false
		t.state = TransportClosed
		d := t.delegate
		t.mu.Unlock()

		conn.Close()
		t.logger.Debug("websocket closed before dial completed", "url", url)
		if d != nil {
			d.TransportDidClose(websocket.CloseNormalClosure, "", true)
		}
		return
	}
	t.conn = conn
	t.state = TransportOpen
	d := t.delegate
	t.mu.Unlock()

	t.logger.Debug("websocket connected", "url", url)
	if d != nil {
		d.TransportDidOpen()
	}

	t.readLoop(conn)
}

func (t *WebsocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.finishRead(conn, err)
			return
		}

		t.mu.Lock()
		d := t.delegate
		t.mu.Unlock()

		if d != nil {
			d.TransportDidReceive(string(data))
		}
	}
}

// finishRead settles the terminal state after a read failure and
// classifies it for the delegate: a received close frame is a clean
// close, everything else is a transport error.
func (t *WebsocketTransport) finishRead(conn *websocket.Conn, err error) {
	conn.Close()

	t.mu.Lock()
	wasClosing := t.state == TransportClosing
	t.state = TransportClosed
	if t.conn == conn {
		t.conn = nil
	}
	d := t.delegate
	t.mu.Unlock()

	if d == nil {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		t.logger.Debug("websocket closed", "code", closeErr.Code, "reason", closeErr.Text)
		d.TransportDidClose(closeErr.Code, closeErr.Text, true)
		return
	}

	if wasClosing {
		d.TransportDidClose(websocket.CloseNormalClosure, "", true)
		return
	}

	t.logger.Debug("websocket read failed", "error", err)
	d.TransportDidError(err)
}

// Send writes one text frame.
func (t *WebsocketTransport) Send(data string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TransportOpen || t.conn == nil {
		return ErrNotConnected
	}

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close starts the close handshake and closes the underlying
// connection. The read loop observes the teardown and settles state.
func (t *WebsocketTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		if t.state == TransportConnecting {
			// A dial is in flight; it settles the teardown when it
			// returns.
			t.closeRequested = true
			t.state = TransportClosing
		} else {
			t.state = TransportClosed
		}
		return
	}

	t.state = TransportClosing

	deadline := time.Now().Add(time.Second)
	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	t.conn.Close()
}

// SetURL sets the endpoint used by the next Open.
func (t *WebsocketTransport) SetURL(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.url = url
}

// SetDelegate attaches the observer for transport events.
func (t *WebsocketTransport) SetDelegate(d TransportDelegate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delegate = d
}

// State reports the current connection state.
func (t *WebsocketTransport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
