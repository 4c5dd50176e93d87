package transport

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vinayprograms/wsrpc/errors"
	"github.com/vinayprograms/wsrpc/logging"
	"github.com/vinayprograms/wsrpc/retry"
	"github.com/vinayprograms/wsrpc/telemetry"
)

// Client is a resilient JSON-RPC connection to one websocket endpoint.
// All methods are safe for concurrent use.
type Client struct {
	endpoint Endpoint
	codec    *Codec
	dialer   Dialer
	policy   retry.Policy
	clock    clock.Clock
	logger   *logging.Logger
	tracer   *telemetry.Tracer

	writeTimeout   time.Duration
	pingInterval   time.Duration
	maxMessageSize int64

	// token is cancelled by Close and aborts an in-flight connect.
	token  context.Context
	cancel context.CancelFunc

	obsMu    sync.RWMutex
	observer Observer

	startMu sync.Mutex // serializes connect sequences

	mu    sync.Mutex // guards state and conn
	state State
	conn  *conn
}

type options struct {
	config   Config
	headers  map[string]string
	observer Observer
	policy   *retry.Policy
	dialer   Dialer
	logger   *logging.Logger
	tracer   *telemetry.Tracer
	schema   Schema
}

// Option configures a Client.
type Option func(*options)

// WithConfig sets timeouts, retry limits and headers from cfg. The endpoint
// in cfg is ignored by NewClient; see NewClientFromConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithHeaders adds handshake headers. They override headers from WithConfig.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			o.headers[k] = v
		}
	}
}

// WithObserver registers the event observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithRetryPolicy replaces the policy derived from the config.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) { o.policy = &p }
}

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithLogger sets the logger. The client logs under the "transport" component.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer. The default is the global tracer at
// construction time.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithSchema replaces the default JSON-RPC envelope schema.
func WithSchema(s Schema) Option {
	return func(o *options) { o.schema = s }
}

// NewClient creates a disconnected client for rawURL. http and https URLs are
// rewritten to ws and wss.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	o := options{config: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(cfg.Headers)+len(o.headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	for k, v := range o.headers {
		headers[k] = v
	}
	endpoint, err := NewEndpoint(rawURL, headers)
	if err != nil {
		return nil, err
	}

	policy := retry.Policy{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.Backoff}
	if o.policy != nil {
		policy = *o.policy
	}
	if policy.MaxAttempts <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "retry policy needs at least one attempt, got %d", policy.MaxAttempts)
	}
	if policy.Clock == nil {
		policy.Clock = clock.New()
	}

	c := &Client{
		endpoint:       endpoint,
		codec:          NewCodec(o.schema),
		dialer:         o.dialer,
		policy:         policy,
		clock:          policy.Clock,
		logger:         o.logger,
		tracer:         o.tracer,
		writeTimeout:   cfg.WriteTimeout,
		pingInterval:   cfg.PingInterval,
		maxMessageSize: cfg.MaxMessageSize,
		observer:       o.observer,
		state:          StateDisconnected,
	}
	if c.dialer == nil {
		c.dialer = NewWebSocketDialer(cfg.HandshakeTimeout)
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	c.logger = c.logger.WithComponent("transport")
	if c.tracer == nil {
		c.tracer = telemetry.GetTracer()
	}
	if c.observer == nil {
		c.observer = Callbacks{}
	}
	c.token, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// NewClientFromConfig creates a client for cfg.Endpoint configured by cfg.
// Later options override values taken from cfg.
func NewClientFromConfig(cfg Config, opts ...Option) (*Client, error) {
	return NewClient(cfg.Endpoint, append([]Option{WithConfig(cfg)}, opts...)...)
}

// Endpoint returns the normalized endpoint.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetObserver replaces the observer. Call it before Start; frames already
// being dispatched may still reach the previous observer.
func (c *Client) SetObserver(obs Observer) {
	if obs == nil {
		obs = Callbacks{}
	}
	c.obsMu.Lock()
	c.observer = obs
	c.obsMu.Unlock()
}

func (c *Client) getObserver() Observer {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	return c.observer
}

// Start connects to the endpoint. It returns nil at once if already
// connected. Otherwise it dials up to MaxAttempts times, waiting Backoff
// between failures. Exhausting the attempts returns CONNECTION_FAILED and
// reports it to OnError. Close or ctx ending the sequence returns CANCELED.
// Start on a closed client returns CLOSED. OnError runs after Start has
// released its locks, so the observer may call Start again.
func (c *Client) Start(ctx context.Context) error {
	err := c.connect(ctx)
	if errors.Is(err, errors.ErrCodeConnectionFailed) {
		c.getObserver().OnError(err)
	}
	return err
}

// connect runs one serialized connect sequence.
func (c *Client) connect(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return errors.New(errors.ErrCodeClosed, "client is closed", errors.WithEndpoint(c.endpoint.URL()))
	case StateConnected:
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	// The attempt ends when either the caller's ctx or the client token does.
	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()
	stop := context.AfterFunc(c.token, cancelAttempt)
	defer stop()

	url := c.endpoint.URL()
	attemptCtx, span := c.tracer.StartConnectSpan(attemptCtx, url)
	started := c.clock.Now()

	var cn *conn
	res := c.policy.Do(attemptCtx, func(ctx context.Context, attempt int) error {
		id := uuid.NewString()
		log := c.logger.WithTraceID(id)
		log.ConnectAttempt(url, attempt, c.policy.MaxAttempts)

		header := c.endpoint.Header()
		telemetry.InjectHeader(ctx, header)
		sock, err := c.dialer.Dial(ctx, url, header)
		if err != nil {
			var retryIn time.Duration
			if attempt < c.policy.MaxAttempts && ctx.Err() == nil {
				retryIn = c.policy.Backoff
			}
			log.ConnectFailed(url, attempt, err, retryIn)
			return err
		}
		cn = newConn(id, sock)
		return nil
	})

	spanOpts := telemetry.ConnectSpanOptions{Attempts: res.Attempts}
	if cn != nil {
		spanOpts.ConnectionID = cn.id
	}

	c.mu.Lock()
	closed := c.state == StateClosed
	if closed || (res.Err != nil && ctx.Err() != nil) {
		if !closed {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		if cn != nil {
			_, _ = cn.shutdown()
		}
		err := c.abortedError(ctx, closed, res.Attempts)
		c.tracer.EndConnectSpan(span, spanOpts, err)
		return err
	}

	if res.Err != nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		err := errors.ConnectionFailed(url, res.Attempts, res.Err)
		c.logger.Error("connect_exhausted", map[string]interface{}{
			"endpoint": url,
			"attempts": res.Attempts,
			"error":    res.Err,
		})
		c.tracer.EndConnectSpan(span, spanOpts, err)
		return err
	}

	if c.maxMessageSize > 0 {
		cn.sock.SetReadLimit(c.maxMessageSize)
	}
	c.conn = cn
	c.state = StateConnected
	go c.readLoop(cn)
	if c.pingInterval > 0 {
		go c.pingLoop(cn)
	}
	c.mu.Unlock()

	c.logger.WithTraceID(cn.id).Connected(url, res.Attempts, c.clock.Since(started))
	c.tracer.EndConnectSpan(span, spanOpts, nil)
	return nil
}

func (c *Client) abortedError(ctx context.Context, closed bool, attempts int) error {
	cause, msg := ctx.Err(), "connect canceled"
	if closed {
		cause, msg = context.Canceled, "connect aborted by close"
	}
	return errors.Wrap(cause, msg,
		errors.WithEndpoint(c.endpoint.URL()),
		errors.WithAttempts(attempts))
}

// Send writes msg as one text frame. It fails with NOT_CONNECTED unless the
// client is connected. A failed write is retried after Backoff, up to
// MaxAttempts; the final failure is returned and reported to OnError.
// Messages are not queued across reconnects.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	c.mu.Lock()
	cn := c.conn
	connected := c.state == StateConnected && cn != nil && cn.isOpen()
	c.mu.Unlock()
	if !connected {
		return errors.NotConnected(errors.WithEndpoint(c.endpoint.URL()))
	}

	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}

	ctx, span := c.tracer.StartSendSpan(ctx, msg.Method)
	spanOpts := telemetry.SendSpanOptions{Bytes: len(data), Payload: string(data)}
	log := c.logger.WithTraceID(cn.id)

	policy := c.policy
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.SendRetry(msg.Method, attempt, err, delay)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}

	res := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if !cn.isOpen() {
			return errors.SocketNotOpen(errors.WithEndpoint(c.endpoint.URL()))
		}
		return stopIfPermanent(cn.write(websocket.TextMessage, data, c.writeTimeout))
	})
	spanOpts.Attempts = res.Attempts

	if res.Err == nil {
		c.tracer.EndSendSpan(span, spanOpts, nil)
		return nil
	}

	if ctx.Err() != nil {
		err := errors.Wrap(ctx.Err(), "send canceled",
			errors.WithEndpoint(c.endpoint.URL()),
			errors.WithAttempts(res.Attempts))
		c.tracer.EndSendSpan(span, spanOpts, err)
		return err
	}

	var final *errors.Error
	if errors.Is(res.Err, errors.ErrCodeSocketNotOpen) {
		final = errors.SocketNotOpen(
			errors.WithEndpoint(c.endpoint.URL()),
			errors.WithAttempts(res.Attempts))
	} else {
		final = errors.DeliveryFailed(res.Attempts, res.Err, errors.WithEndpoint(c.endpoint.URL()))
	}
	log.SendFailed(msg.Method, res.Attempts, final)
	c.tracer.EndSendSpan(span, spanOpts, final)
	c.getObserver().OnError(final)
	return final
}

// stopIfPermanent ends the retry loop for transport errors another attempt
// cannot fix.
func stopIfPermanent(err error) error {
	if errors.AsTransportError(err) != nil && !errors.IsRetryable(err) {
		return retry.Stop(err)
	}
	return err
}

// Close shuts the client down. It cancels a connect in progress, closes the
// socket if open, and calls OnClose. It is idempotent, calls OnClose on every
// call, and always returns nil.
func (c *Client) Close() error {
	c.teardown()
	c.getObserver().OnClose()
	return nil
}

func (c *Client) teardown() {
	prior, cn := c.markClosed()
	c.cancel()
	if cn != nil {
		c.shutdownConn(cn)
	}
	c.logger.Closed(c.endpoint.URL(), prior.String())
}

// shutdownConn closes cn, logging errors and recovering a panicking socket.
func (c *Client) shutdownConn(cn *conn) {
	log := c.logger.WithTraceID(cn.id)
	defer func() {
		if r := recover(); r != nil {
			log.Error("close_panic", map[string]interface{}{
				"endpoint": c.endpoint.URL(),
				"error":    errors.RecoverPanic(r),
			})
		}
	}()
	if _, err := cn.shutdown(); err != nil {
		log.Warn("close_error", map[string]interface{}{
			"endpoint": c.endpoint.URL(),
			"error":    err,
		})
	}
}

func (c *Client) markClosed() (State, *conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prior, cn := c.state, c.conn
	c.state = StateClosed
	c.conn = nil
	return prior, cn
}

// readLoop delivers inbound frames for one connection until it fails.
func (c *Client) readLoop(cn *conn) {
	defer close(cn.done)
	log := c.logger.WithTraceID(cn.id)

	for {
		frameType, data, err := cn.sock.ReadMessage()
		if err != nil {
			c.handleDisconnect(cn, err)
			return
		}

		msg, err := c.codec.Decode(frameType, data)
		if err != nil {
			log.DecodeFailure(err, len(data))
			c.getObserver().OnError(err)
			continue
		}
		c.getObserver().OnMessage(msg)
	}
}

// handleDisconnect moves a connection that dropped on its own to
// Disconnected. Connections already discarded by Close or a newer Start are
// ignored.
func (c *Client) handleDisconnect(cn *conn, readErr error) {
	c.mu.Lock()
	if c.conn != cn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	_, _ = cn.shutdown()

	var reported error
	if !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		reported = readErr
	}
	c.logger.WithTraceID(cn.id).Disconnected(c.endpoint.URL(), reported)
	c.getObserver().OnClose()
}

// pingLoop sends keepalive pings until the connection's read loop exits.
func (c *Client) pingLoop(cn *conn) {
	ticker := c.clock.Ticker(c.pingInterval)
	defer ticker.Stop()
	log := c.logger.WithTraceID(cn.id)

	for {
		select {
		case <-cn.done:
			return
		case <-ticker.C:
			if !cn.isOpen() {
				return
			}
			if err := cn.ping(c.writeTimeout); err != nil {
				log.Debug("ping_failed", map[string]interface{}{"error": err})
			}
		}
	}
}
