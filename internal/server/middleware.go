package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rickgao/reits-ledger/internal/model"
)

// HeaderRequestID carries the request ID on requests and responses.
const HeaderRequestID = "X-Request-ID"

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxCaller
)

// requestID assigns every request an ID, keeping a valid client-supplied one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(HeaderRequestID))
		if err != nil {
			id = uuid.New()
		}
		w.Header().Set(HeaderRequestID, id.String())
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, id)))
	})
}

func requestIDFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxRequestID).(uuid.UUID)
	return id
}

// observe logs and counts each request by route template.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.deps.Recorder.HTTPRequest(route, strconv.Itoa(rw.status))
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", rw.status,
			"request_id", requestIDFrom(r.Context()),
			"duration", time.Since(start),
		)
	})
}

// authenticate verifies the request signature and stores the caller.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, 0, "RequestTooLarge", err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, 0, "InvalidRequest", "read body: "+err.Error())
			return
		}

		caller, err := s.deps.Verifier.Verify(r.Header, r.Method, r.URL.RequestURI(), body)
		if err != nil {
			s.logger.Debug("rejected request signature",
				"request_id", requestIDFrom(r.Context()),
				"error", err,
			)
			writeError(w, http.StatusUnauthorized, 0, "Unauthenticated", err.Error())
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxCaller, caller)))
	})
}

func callerFrom(ctx context.Context) model.Address {
	caller, _ := ctx.Value(ctxCaller).(model.Address)
	return caller
}

// statusWriter records the response status. It passes Hijack through so the
// event stream can upgrade.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
