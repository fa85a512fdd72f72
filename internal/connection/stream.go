package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// StreamStats contains stream counters.
type StreamStats struct {
	Connected  bool
	Connects   int64
	Reconnects int64
	Received   int64
}

// Stream keeps an event stream connection alive and merges every connection's
// events into one channel.
type Stream struct {
	cfg    StreamConfig
	logger *slog.Logger

	// dial creates the client for each connection attempt.
	dial func() Client

	out chan ReceivedEvent

	mu    sync.Mutex
	stats StreamStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStream creates a Stream.
func NewStream(cfg StreamConfig, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = DefaultStreamConfig().ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = cfg.ReconnectBaseWait
	}
	s := &Stream{
		cfg:    cfg,
		logger: logger,
		out:    make(chan ReceivedEvent, cfg.BufferSize),
	}
	s.dial = func() Client {
		return NewClient(cfg.Client, logger)
	}
	return s
}

// Start connects once and keeps the stream running until Stop or ctx ends.
// Authentication failures on the first attempt are returned; anything else
// is retried in the background.
func (s *Stream) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	c := s.dial()
	if err := c.Connect(s.ctx); err != nil {
		var hsErr *HandshakeError
		if errors.Is(err, ErrNoCredentials) || (errors.As(err, &hsErr) && hsErr.StatusCode == http.StatusUnauthorized) {
			s.cancel()
			return err
		}
		s.logger.Warn("event stream connect failed, will retry", "error", err)
		c = nil
	} else {
		s.connected(false)
	}

	s.wg.Add(1)
	go s.run(c)
	return nil
}

// Stop closes the connection and waits for the stream to exit. The Events
// channel is closed afterwards.
func (s *Stream) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the merged event channel.
func (s *Stream) Events() <-chan ReceivedEvent {
	return s.out
}

// Stats returns stream counters.
func (s *Stream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Stream) connected(reconnect bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Connected = true
	s.stats.Connects++
	if reconnect {
		s.stats.Reconnects++
	}
}

func (s *Stream) disconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Connected = false
}

// run forwards events from the current client and reconnects when it fails.
// c is nil when the initial connect failed.
func (s *Stream) run(c Client) {
	defer s.wg.Done()
	defer close(s.out)

	for {
		if c == nil {
			if c = s.reconnect(); c == nil {
				return
			}
		}

		err := s.forward(c)
		c.Close()
		s.disconnected()
		c = nil

		if err == nil {
			return
		}
		s.logger.Warn("event stream disconnected", "error", err)
	}
}

// forward delivers c's events until c fails (returning its error) or the
// stream stops (returning nil).
func (s *Stream) forward(c Client) error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case ev := <-c.Events():
			if !s.deliver(ev) {
				return nil
			}
		case err := <-c.Errors():
			// Events read before the failure are still delivered.
			for {
				select {
				case ev := <-c.Events():
					if !s.deliver(ev) {
						return nil
					}
				default:
					return err
				}
			}
		}
	}
}

func (s *Stream) deliver(ev ReceivedEvent) bool {
	select {
	case s.out <- ev:
		s.mu.Lock()
		s.stats.Received++
		s.mu.Unlock()
		return true
	case <-s.ctx.Done():
		return false
	}
}

// reconnect dials with exponential backoff until it succeeds or the stream
// stops, in which case it returns nil.
func (s *Stream) reconnect() Client {
	wait := s.cfg.ReconnectBaseWait

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-time.After(wait):
		}

		s.logger.Info("attempting reconnection", "url", s.cfg.Client.URL)

		c := s.dial()
		if err := c.Connect(s.ctx); err != nil {
			s.logger.Warn("reconnection failed", "error", err, "retry_in", wait)

			// Exponential backoff
			wait *= 2
			if wait > s.cfg.ReconnectMaxWait {
				wait = s.cfg.ReconnectMaxWait
			}
			continue
		}

		s.logger.Info("reconnected", "url", s.cfg.Client.URL)
		s.connected(true)
		return c
	}
}
