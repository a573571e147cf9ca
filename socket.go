package phxsocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultHeartbeatInterval is the period between keepalive
	// heartbeats when none is configured.
	DefaultHeartbeatInterval = 1 * time.Second

	// DefaultReconnectDelay is the fixed delay before a reconnect
	// attempt after an unexpected close. Retries repeat at this same
	// interval; there is no backoff.
	DefaultReconnectDelay = 5 * time.Second
)

// Options configures a Socket. The zero value is usable: every field
// falls back to a default.
type Options struct {
	// HeartbeatInterval between keepalive messages. Zero selects
	// DefaultHeartbeatInterval; a negative value disables heartbeats.
	HeartbeatInterval time.Duration

	// ReconnectDelay before each automatic reconnect attempt. Zero
	// selects DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// ReconnectOnError controls automatic reconnection on unexpected
	// close (default: true).
	ReconnectOnError *bool

	// PoolSize is the number of workers serializing socket state
	// (default: 1). Values above 1 forfeit the ordering guarantees the
	// connection state machine relies on; leave it alone unless you
	// know what you are doing.
	PoolSize int

	// Transport to use instead of the default WebsocketTransport.
	// Mainly for testing.
	Transport Transport

	// Logger for structured debug output (default: slog.Default()).
	Logger *slog.Logger
}

func setDefaultOptions(options *Options) {
	if options.HeartbeatInterval == 0 {
		options.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if options.ReconnectDelay == 0 {
		options.ReconnectDelay = DefaultReconnectDelay
	}
	if options.ReconnectOnError == nil {
		enabled := true
		options.ReconnectOnError = &enabled
	}
	if options.PoolSize < 1 {
		options.PoolSize = 1
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
}

// Socket owns one persistent connection to a Phoenix endpoint and
// drives its lifecycle: connect, heartbeat, routing, reconnect.
//
// All state transitions run on a serialized worker pool. Registered
// callbacks and channel TriggerEvent calls execute on that pool, in
// registration/attachment order; they must not block on pool
// round-trips such as MakeRef.
type Socket struct {
	url               string
	heartbeatInterval time.Duration
	reconnectDelay    time.Duration
	reconnectOnError  bool
	logger            *slog.Logger

	pool       *pool
	serializer *Serializer

	// Socket lifetime; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	// The transport reference is assigned only inside pool tasks but is
	// read by the non-blocking public API (Push, IsConnected), hence
	// the read lock rather than a pool round-trip.
	transportMu  sync.RWMutex
	transport    Transport
	newTransport func() Transport

	// Owned by the worker pool: touched only inside submitted tasks.
	params           map[string]string
	ref              int64
	canReconnect     bool
	reconnecting     bool
	canSendHeartbeat bool
	heartbeatCancel  context.CancelFunc

	channels         []Channel
	openCallbacks    []func()
	closeCallbacks   []func(reason string)
	errorCallbacks   []func(err error)
	messageCallbacks []func(msg *Message)
	delegate         SocketDelegate
}

// NewSocket creates a socket for the given endpoint URL. The connection
// is not opened until Connect.
func NewSocket(url string, options *Options) *Socket {
	opts := Options{}
	if options != nil {
		opts = *options
	}
	setDefaultOptions(&opts)

	ctx, cancel := context.WithCancel(context.Background())

	s := &Socket{
		url:               url,
		heartbeatInterval: opts.HeartbeatInterval,
		reconnectDelay:    opts.ReconnectDelay,
		reconnectOnError:  *opts.ReconnectOnError,
		logger:            opts.Logger.With("socket_id", uuid.NewString()),
		pool:              newPool(opts.PoolSize),
		serializer:        NewSerializer(),
		ctx:               ctx,
		cancel:            cancel,
		transport:         opts.Transport,
	}
	s.newTransport = func() Transport {
		return NewWebsocketTransport(s.url)
	}

	return s
}

// Connect asynchronously opens the connection. Completion is signaled
// through the OnOpen callbacks and the delegate, never as a return
// value.
func (s *Socket) Connect() {
	s.ConnectWithParams(nil)
}

// ConnectWithParams opens the connection with connection parameters.
// The params are retained and reused by automatic reconnects. They are
// not currently encoded into the endpoint URL.
func (s *Socket) ConnectWithParams(params map[string]string) {
	s.pool.submit(func() { s.connectTask(params) })
}

// Disconnect cancels the heartbeat and any pending reconnect, then
// closes and drops the transport. Safe to call at any time, in any
// state.
func (s *Socket) Disconnect() {
	s.pool.submit(s.disconnectTask)
}

// Reconnect tears the current transport down and connects again with
// the previously stored params. Used internally by the reconnect timer
// and exposed for manual retries.
func (s *Socket) Reconnect() {
	s.pool.submit(s.reconnectTask)
}

// Close is the terminal teardown: it disconnects, stops all timers and
// shuts the worker pool down. The socket must not be used afterwards.
func (s *Socket) Close() {
	s.pool.submit(s.disconnectTask)
	s.cancel()
	s.pool.stop()
}

// IsConnected reports whether the underlying transport is open. False
// when no transport exists.
func (s *Socket) IsConnected() bool {
	s.transportMu.RLock()
	t := s.transport
	s.transportMu.RUnlock()

	return t != nil && t.State() == TransportOpen
}

// Push serializes the envelope and sends it through the transport.
// Sends are fire-and-forget: failures surface through the OnError
// callbacks and the delegate, not as a return value.
func (s *Socket) Push(msg *Message) {
	data, err := s.serializer.Encode(msg)
	if err != nil {
		s.logger.Error("failed to encode message", "topic", msg.Topic, "event", msg.Event, "error", err)
		s.submitError(err)
		return
	}

	s.transportMu.RLock()
	t := s.transport
	s.transportMu.RUnlock()

	if t == nil {
		s.submitError(ErrNotConnected)
		return
	}

	if err := t.Send(string(data)); err != nil {
		s.submitError(err)
	}
}

// SendHeartbeat pushes the reserved phoenix heartbeat envelope.
func (s *Socket) SendHeartbeat() {
	s.pool.submit(s.sendHeartbeat)
}

// MakeRef returns the next reply reference. Refs start at 0, increase
// strictly and are never reused. Must not be called from inside a
// socket callback: with the default pool size the round-trip would
// deadlock.
func (s *Socket) MakeRef() int64 {
	resp := make(chan int64, 1)
	s.pool.submit(func() { resp <- s.nextRef() })

	select {
	case ref := <-resp:
		return ref
	case <-s.ctx.Done():
		return NoRef
	}
}

// OnOpen registers a callback invoked whenever the connection opens.
// Callbacks run in registration order and cannot be removed.
func (s *Socket) OnOpen(callback func()) {
	s.pool.submit(func() {
		s.openCallbacks = append(s.openCallbacks, callback)
	})
}

// OnClose registers a callback invoked whenever the connection closes.
func (s *Socket) OnClose(callback func(reason string)) {
	s.pool.submit(func() {
		s.closeCallbacks = append(s.closeCallbacks, callback)
	})
}

// OnError registers a callback invoked on every transport error.
func (s *Socket) OnError(callback func(err error)) {
	s.pool.submit(func() {
		s.errorCallbacks = append(s.errorCallbacks, callback)
	})
}

// OnMessage registers a callback invoked with every decoded inbound
// message, whether or not a channel matched its topic.
func (s *Socket) OnMessage(callback func(msg *Message)) {
	s.pool.submit(func() {
		s.messageCallbacks = append(s.messageCallbacks, callback)
	})
}

// AddChannel attaches a channel for topic routing. The socket does not
// take ownership of the channel.
func (s *Socket) AddChannel(ch Channel) {
	s.pool.submit(func() {
		s.channels = append(s.channels, ch)
	})
}

// RemoveChannel detaches a previously attached channel. The match is by
// interface equality, which is why Channel implementations must be
// comparable (see Channel).
func (s *Socket) RemoveChannel(ch Channel) {
	s.pool.submit(func() {
		for i, attached := range s.channels {
			if attached == ch {
				s.channels = append(s.channels[:i], s.channels[i+1:]...)
				return
			}
		}
	})
}

// SetDelegate attaches the lifecycle observer. Nil detaches.
func (s *Socket) SetDelegate(d SocketDelegate) {
	s.pool.submit(func() {
		s.delegate = d
	})
}

// Pool tasks. Everything below runs on the worker pool unless noted.

func (s *Socket) connectTask(params map[string]string) {
	s.params = params

	// A pending reconnect attempt is cancelled cooperatively: the
	// sleeping timer wakes, sees the cleared flag and skips.
	s.canReconnect = false

	s.transportMu.Lock()
	if s.transport == nil {
		s.transport = s.newTransport()
	}
	t := s.transport
	s.transportMu.Unlock()

	t.SetDelegate(s)
	t.SetURL(s.url)
	t.Open()
}

func (s *Socket) disconnectTask() {
	s.discardHeartbeat()
	s.canReconnect = false
	s.teardownTransport()
}

func (s *Socket) reconnectTask() {
	s.teardownTransport()
	s.connectTask(s.params)
}

func (s *Socket) teardownTransport() {
	s.transportMu.Lock()
	t := s.transport
	s.transport = nil
	s.transportMu.Unlock()

	if t != nil {
		t.SetDelegate(nil)
		t.Close()
	}
}

func (s *Socket) nextRef() int64 {
	ref := s.ref
	s.ref++
	return ref
}

func (s *Socket) sendHeartbeat() {
	s.Push(&Message{
		Topic:   "phoenix",
		Event:   "heartbeat",
		Payload: map[string]interface{}{},
		Ref:     s.nextRef(),
	})
}

func (s *Socket) discardHeartbeat() {
	s.canSendHeartbeat = false
	if s.heartbeatCancel != nil {
		s.heartbeatCancel()
		s.heartbeatCancel = nil
	}
}

// submitError surfaces an error through the callback chain. Callable
// from any goroutine.
func (s *Socket) submitError(err error) {
	s.pool.submit(func() { s.triggerError(err) })
}

func (s *Socket) triggerError(err error) {
	for _, callback := range s.errorCallbacks {
		callback(err)
	}
	if s.delegate != nil {
		s.delegate.SocketDidReceiveError(err)
	}
}

func (s *Socket) triggerChanError(reason string) {
	for _, ch := range s.channels {
		ch.TriggerEvent("phx_error", reason, 0)
	}
}

// Internal handlers for transport events.

func (s *Socket) onConnOpen() {
	s.logger.Info("socket opened", "url", s.url)

	s.canReconnect = false

	if s.heartbeatInterval > 0 {
		// Replace any loop left over from a previous session.
		s.discardHeartbeat()
		s.canSendHeartbeat = true

		ctx, cancel := context.WithCancel(s.ctx)
		s.heartbeatCancel = cancel
		go s.heartbeatLoop(ctx)
	}

	for _, callback := range s.openCallbacks {
		callback()
	}
	if s.delegate != nil {
		s.delegate.SocketDidOpen()
	}
}

func (s *Socket) onConnError(err error) {
	s.logger.Warn("socket error", "error", err)

	s.discardHeartbeat()
	s.triggerError(err)

	// A transport error implies the connection is gone.
	s.onConnClose(err.Error())
}

func (s *Socket) onConnClose(reason string) {
	s.logger.Info("socket closed", "reason", reason)

	// Channels hear about the failure first so they can transition
	// their own state before any reconnect begins.
	s.triggerChanError(reason)

	if s.reconnectOnError && !s.reconnecting {
		s.reconnecting = true
		s.canReconnect = true
		go s.reconnectAfterDelay()
	}

	s.discardHeartbeat()

	for _, callback := range s.closeCallbacks {
		callback(reason)
	}
	if s.delegate != nil {
		s.delegate.SocketDidClose(reason)
	}
}

func (s *Socket) onConnMessage(raw string) {
	msg, err := s.serializer.Decode([]byte(raw))
	if err != nil {
		// One bad frame must not take the connection down.
		s.logger.Warn("dropping undecodable frame", "error", err)
		return
	}

	for _, ch := range s.channels {
		if ch.Topic() == msg.Topic {
			ch.TriggerEvent(msg.Event, msg.Payload, msg.Ref)
		}
	}

	for _, callback := range s.messageCallbacks {
		callback(msg)
	}
}

// Timer goroutines. These only sleep; every effect is a submitted task.

func (s *Socket) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pool.submit(func() {
				if s.canSendHeartbeat {
					s.sendHeartbeat()
				}
			})
		}
	}
}

func (s *Socket) reconnectAfterDelay() {
	select {
	case <-time.After(s.reconnectDelay):
	case <-s.ctx.Done():
	}

	// The guard is cleared unconditionally so a later close can arm a
	// fresh timer, even when this attempt was cancelled.
	s.pool.submit(func() {
		if s.canReconnect {
			s.canReconnect = false
			s.reconnectTask()
		}
		s.reconnecting = false
	})
}

// TransportDelegate. Notifications arrive on transport goroutines and
// are converted into pool tasks; this is the only bridge between
// transport concurrency and socket state.

func (s *Socket) TransportDidOpen() {
	s.pool.submit(s.onConnOpen)
}

func (s *Socket) TransportDidReceive(message string) {
	s.pool.submit(func() { s.onConnMessage(message) })
}

func (s *Socket) TransportDidError(err error) {
	s.pool.submit(func() { s.onConnError(err) })
}

func (s *Socket) TransportDidClose(code int, reason string, wasClean bool) {
	s.pool.submit(func() { s.onConnClose(reason) })
}
