// Package transport implements the push connection to an upstream event feed.
//
// A Client keeps one WebSocket connection open, reconnecting with
// exponential backoff, and hands each received frame to the handlers
// subscribed for its "type" field. Frames are dispatched one at a time on
// the connection's read goroutine, in arrival order.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/errors"
)

// Handler receives one frame. eventType is the frame's "type" field, or ""
// when the frame is not a JSON object with a string type. payload is the
// whole frame.
type Handler func(eventType string, payload json.RawMessage)

// Subscription is a registered handler.
type Subscription interface {
	// Unsubscribe removes the handler. It is safe to call more than once
	// and from inside the handler itself.
	Unsubscribe()
}

type subscription struct {
	client    *Client
	eventType string
	handler   Handler
	active    atomic.Bool
	once      sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		s.client.remove(s)
	})
}

type stateListener struct {
	fn     func(StateChange)
	active atomic.Bool
}

// Client is a reconnecting WebSocket feed client.
type Client struct {
	url         string
	dialer      *websocket.Dialer
	auth        Authenticator
	apiKey      string
	header      http.Header
	newBackOff  func() backoff.BackOff
	maxAttempts uint64
	readLimit   int64
	logger      *zerolog.Logger

	mu     sync.Mutex
	subs   []*subscription
	states []*stateListener
	cancel context.CancelFunc
	done   chan struct{}

	connected atomic.Bool
	attempts  atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAuth authenticates the handshake with apiKey using auth.
func WithAuth(auth Authenticator, apiKey string) Option {
	return func(c *Client) {
		if auth != nil {
			c.auth = auth
		}
		c.apiKey = apiKey
	}
}

// WithHeader adds headers to the handshake request.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		for k, vs := range h {
			for _, v := range vs {
				c.header.Add(k, v)
			}
		}
	}
}

// WithBackOff sets the reconnect policy. The factory is called once per
// connection loop; the policy is reset after every successful connect.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Client) {
		if factory != nil {
			c.newBackOff = factory
		}
	}
}

// WithMaxAttempts gives up after n consecutive failed attempts. Zero retries forever.
func WithMaxAttempts(n uint64) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// DefaultBackOff is the reconnect policy used unless WithBackOff is given.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = constants.ReconnectInitialInterval
	b.MaxInterval = constants.ReconnectMaxInterval
	b.Multiplier = constants.ReconnectMultiplier
	b.MaxElapsedTime = 0
	return b
}

// New creates a client for the feed at url. It does not connect.
func New(url string, opts ...Option) *Client {
	nop := zerolog.Nop()
	c := &Client{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: constants.DialTimeout,
		},
		auth:       &NoAuth{},
		header:     make(http.Header),
		newBackOff: DefaultBackOff,
		readLimit:  constants.MaxInboundMessageSize,
		logger:     &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the feed URL.
func (c *Client) URL() string {
	return c.url
}

// Connect starts the connection loop. It returns immediately; progress is
// reported through OnStateChange. Calling Connect while already running is
// a no-op. The loop stops when ctx is cancelled or Disconnect is called.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.NewConnectionError(c.url, 0, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(loopCtx, c.done)
	return nil
}

// Disconnect stops the connection loop and waits for it to exit. It is
// safe to call when not connected and more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsConnected reports whether a connection is currently open.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// ReconnectAttempts returns the number of consecutive failed connection attempts.
func (c *Client) ReconnectAttempts() int {
	return int(c.attempts.Load())
}

// Subscribe registers handler for frames of eventType. The type "*" receives
// every frame. Handlers for the same frame run in registration order.
func (c *Client) Subscribe(eventType string, handler Handler) Subscription {
	s := &subscription{client: c, eventType: eventType, handler: handler}
	s.active.Store(true)

	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
	return s
}

// HandlerCount returns the number of registered handlers.
func (c *Client) HandlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Client) remove(s *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subs {
		if sub == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// OnStateChange registers fn for connection state transitions and returns
// a function that removes it. fn runs on the connection goroutine.
func (c *Client) OnStateChange(fn func(StateChange)) (remove func()) {
	l := &stateListener{fn: fn}
	l.active.Store(true)

	c.mu.Lock()
	c.states = append(c.states, l)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Store(false)
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.states {
				if s == l {
					c.states = append(c.states[:i], c.states[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Client) emit(change StateChange) {
	c.mu.Lock()
	listeners := make([]*stateListener, len(c.states))
	copy(listeners, c.states)
	c.mu.Unlock()

	for _, l := range listeners {
		if l.active.Load() {
			l.fn(change)
		}
	}
}

// run owns the connection until ctx is done.
func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	policy := c.newBackOff()
	if c.maxAttempts > 0 {
		// the first attempt is not a retry
		policy = backoff.WithMaxRetries(policy, c.maxAttempts-1)
	}
	policy = backoff.WithContext(policy, ctx)

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.emit(StateChange{State: StateDisconnected, Attempt: c.ReconnectAttempts()})
				return
			}
			attempt := int(c.attempts.Add(1))
			connErr := errors.NewConnectionError(c.url, attempt, err)

			wait := policy.NextBackOff()
			if wait == backoff.Stop {
				if ctx.Err() != nil {
					c.emit(StateChange{State: StateDisconnected, Attempt: attempt})
					return
				}
				c.logger.Error().Err(connErr).Msg("Giving up on event feed")
				c.emit(StateChange{State: StateFailed, Attempt: attempt, Err: connErr})
				c.clearRunning(done)
				return
			}

			c.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Dur("retry_in", wait).
				Msg("Event feed connection failed")
			c.emit(StateChange{State: StateReconnecting, Attempt: attempt, Err: connErr})

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				c.emit(StateChange{State: StateDisconnected, Attempt: attempt})
				return
			case <-timer.C:
			}
			continue
		}

		policy.Reset()
		c.attempts.Store(0)
		c.connected.Store(true)
		c.logger.Info().Str("url", c.url).Msg("Connected to event feed")
		c.emit(StateChange{State: StateConnected})

		err = c.readLoop(ctx, conn)
		c.connected.Store(false)

		if ctx.Err() != nil {
			c.logger.Info().Str("url", c.url).Msg("Disconnected from event feed")
			c.emit(StateChange{State: StateDisconnected})
			return
		}
		c.logger.Warn().Err(err).Msg("Event feed connection lost")
		c.emit(StateChange{State: StateDisconnected, Err: errors.NewConnectionError(c.url, 0, err)})
	}
}

// clearRunning lets Connect start a new loop after this one gave up.
func (c *Client) clearRunning(done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == done {
		c.cancel()
		c.cancel, c.done = nil, nil
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if c.apiKey != "" {
		c.auth.Apply(req, c.apiKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, req.URL.String(), req.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readLoop reads frames until the connection fails or ctx is done.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(constants.WriteWait))
			_ = conn.Close()
		case <-stop:
			_ = conn.Close()
		}
	}()

	conn.SetReadLimit(c.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(constants.PongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(constants.WriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(constants.PongWait))
		c.dispatch(data)
	}
}

// frameHeader is the only part of a frame the client interprets.
type frameHeader struct {
	Type string `json:"type"`
}

func (c *Client) dispatch(data []byte) {
	var head frameHeader
	if err := json.Unmarshal(data, &head); err != nil {
		head.Type = ""
	}

	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		if s.eventType == constants.WildcardEventType || (head.Type != "" && s.eventType == head.Type) {
			subs = append(subs, s)
		}
	}
	c.mu.Unlock()

	payload := json.RawMessage(data)
	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		c.invoke(s, head.Type, payload)
	}
}

func (c *Client) invoke(s *subscription, eventType string, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("event_type", eventType).
				Msg("Feed handler panicked")
		}
	}()
	s.handler(eventType, payload)
}
