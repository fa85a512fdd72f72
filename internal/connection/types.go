package connection

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rickgao/reits-ledger/internal/auth"
	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/model"
)

// EventsPath is the event stream route.
const EventsPath = "/v1/events"

// Errors
var (
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrNoCredentials   = errors.New("event stream requires credentials")
)

// ReceivedEvent wraps an event with its local receive time.
type ReceivedEvent struct {
	Event      events.Event
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a stream connection.
type ClientConfig struct {
	URL          string            // Daemon base URL, http(s) or ws(s)
	Credentials  *auth.Credentials // Signs the handshake
	Addresses    []model.Address   // Only events involving these (empty = all)
	Types        []events.Type     // Only these event types (empty = all)
	PingTimeout  time.Duration     // Max time without ping before considering connection stale
	WriteTimeout time.Duration     // Write deadline for control frames
	BufferSize   int               // Event channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}

// StreamConfig configures a reconnecting Stream.
type StreamConfig struct {
	Client            ClientConfig
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
	BufferSize        int           // Buffer size for the output channel
}

// DefaultStreamConfig returns sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Client:            DefaultClientConfig(),
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  time.Minute,
		BufferSize:        4096,
	}
}

// streamURL returns the websocket URL for cfg, filters included.
func streamURL(cfg ClientConfig) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path += EventsPath

	q := url.Values{}
	for _, a := range cfg.Addresses {
		q.Add("address", a.String())
	}
	for _, t := range cfg.Types {
		q.Add("type", string(t))
	}
	u.RawQuery = q.Encode()
	return u, nil
}

// HandshakeError is returned when the server rejects the stream handshake.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("stream handshake rejected with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
