package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/model"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// streamFilter builds a hub filter from the address and type query
// parameters. Both may repeat.
func streamFilter(r *http.Request) (events.Filter, error) {
	q := r.URL.Query()

	var addrs []model.Address
	for _, s := range q["address"] {
		a, err := model.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	types := make(map[events.Type]bool)
	for _, t := range q["type"] {
		types[events.Type(t)] = true
	}

	if len(addrs) == 0 && len(types) == 0 {
		return nil, nil
	}
	return func(e events.Event) bool {
		if len(types) > 0 && !types[e.Type] {
			return false
		}
		if len(addrs) == 0 {
			return true
		}
		for _, a := range addrs {
			if e.Involves(a) {
				return true
			}
		}
		return false
	}, nil
}

// handleEvents streams committed events to a websocket client until either
// side closes or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := streamFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, 0, "InvalidRequest", err.Error())
		return
	}

	// Registered before the upgrade, while http.Server still tracks the
	// connection, so Serve's wait cannot miss it.
	s.streamWG.Add(1)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.streamWG.Done()
		s.logger.Debug("event stream upgrade failed", "error", err)
		return
	}

	caller := callerFrom(r.Context())
	sub := s.deps.Hub.Subscribe(filter)

	s.deps.Recorder.StreamClientConnected(1)
	s.logger.Info("event stream connected",
		"caller", caller,
		"remote", r.RemoteAddr,
	)

	done := make(chan struct{})
	go s.streamReader(conn, sub, done)
	go s.streamPinger(conn, sub, done)

	defer func() {
		sub.Close()
		conn.Close()
		<-done
		s.deps.Recorder.StreamClientConnected(-1)
		s.streamWG.Done()
		s.logger.Info("event stream closed",
			"caller", caller,
			"delivered", sub.Stats().Received,
		)
	}()

	for {
		ev, ok := sub.Receive()
		if !ok {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
				time.Now().Add(streamWriteWait))
			return
		}
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Debug("event stream write failed", "error", err)
			return
		}
	}
}

// streamReader consumes client frames so control messages are processed, and
// closes the subscription when the client goes away.
func (s *Server) streamReader(conn *websocket.Conn, sub *events.Subscription, done chan<- struct{}) {
	defer close(done)
	defer sub.Close()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// streamPinger keeps the connection alive and ends the stream on shutdown.
func (s *Server) streamPinger(conn *websocket.Conn, sub *events.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.streams.Done():
			sub.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				sub.Close()
				return
			}
		}
	}
}
