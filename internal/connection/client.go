package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one event stream connection.
type Client interface {
	// Connect dials the stream with a freshly signed handshake.
	Connect(ctx context.Context) error

	// Close sends a close frame and releases the connection.
	Close() error

	// Events returns a channel of received events.
	Events() <-chan ReceivedEvent

	// Errors delivers at most one error, when the connection fails.
	Errors() <-chan error

	// IsConnected reports whether the connection is up.
	IsConnected() bool
}

type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	events chan ReceivedEvent
	errors chan error
	done   chan struct{}

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
}

// NewClient creates a stream client. Connect must be called before events
// flow; a client connects at most once.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultClientConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaults.PingTimeout
	}

	return &client{
		cfg:    cfg,
		logger: logger,
		events: make(chan ReceivedEvent, cfg.BufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (c *client) Connect(ctx context.Context) error {
	if c.cfg.Credentials == nil {
		return ErrNoCredentials
	}
	u, err := streamURL(c.cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrAlreadyClosed
	}

	// The server verifies the signature over the request URI, query included.
	header := http.Header{}
	for k, v := range c.cfg.Credentials.SignRequest(http.MethodGet, u.RequestURI(), nil) {
		header.Set(k, v)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return err
	}

	// The server pings periodically; a connection that stays silent for
	// PingTimeout fails its next read.
	conn.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	c.conn = conn
	c.connected = true
	go c.readLoop(conn)

	c.logger.Debug("event stream connected", "url", u.String())
	return nil
}

func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout))
	return conn.Close()
}

func (c *client) Events() <-chan ReceivedEvent {
	return c.events
}

func (c *client) Errors() <-chan error {
	return c.errors
}

func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// readLoop decodes frames into events until the connection fails or is
// closed. Failures after Close are not reported.
func (c *client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()

			select {
			case <-c.done:
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.logger.Warn("no ping received, connection stale", "timeout", c.cfg.PingTimeout)
				err = ErrStaleConnection
			}
			c.errors <- err
			return
		}

		ev := ReceivedEvent{ReceivedAt: time.Now()}
		if err := json.Unmarshal(data, &ev.Event); err != nil {
			c.logger.Warn("dropping undecodable event", "error", err, "size", len(data))
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		default:
			c.logger.Warn("event buffer full, dropping event", "id", ev.Event.ID, "type", ev.Event.Type)
		}
	}
}
