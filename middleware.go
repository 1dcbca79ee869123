package tally

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// DefaultCookieName is the cookie that carries the anonymous actor id.
const DefaultCookieName = "tally_actor"

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middleware)

// WithActorFunc sets how the signed-in user id is read from a request. When it
// returns "" the client is treated as anonymous.
func WithActorFunc(fn func(*http.Request) string) MiddlewareOption {
	return func(m *middleware) {
		m.actor = fn
	}
}

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) MiddlewareOption {
	return func(m *middleware) {
		m.cookie = name
	}
}

// middleware implements http.Handler and records a matched request as an event
// once the wrapped handler has served it successfully.
type middleware struct {
	recorder *Recorder
	pattern  string
	next     http.Handler
	actor    func(*http.Request) string
	cookie   string
}

// Middleware wraps next so that every request whose path matches pattern is
// recorded once per actor, keyed by the part of the path matched by the
// pattern's wildcard (see the package documentation for pattern syntax).
//
// The request is always served by next; tracking failures never change the
// response. Only responses with a status below 400 are recorded, so a missing
// file or a rejected request does not count. Recording is not cancelled if the
// client goes away.
func (r *Recorder) Middleware(pattern string, next http.Handler, opts ...MiddlewareOption) http.Handler {
	m := &middleware{
		recorder: r,
		pattern:  pattern,
		next:     next,
		cookie:   DefaultCookieName,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *middleware) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodHead || req.Method == http.MethodOptions {
		m.next.ServeHTTP(w, req)
		return
	}

	key, ok := matchPath(req.URL.Path, m.pattern)
	if !ok {
		m.next.ServeHTTP(w, req)
		return
	}

	var userID string
	if m.actor != nil {
		userID = m.actor(req)
	}
	actorID, err := ResolveActor(userID, NewCookieIDStore(w, req, m.cookie))
	if err != nil {
		m.recorder.logger.Warn("resolve actor", zap.String("actor", actorID), zap.Error(err))
	}

	sw := &statusWriter{ResponseWriter: w}
	m.next.ServeHTTP(sw, req)
	if sw.code() >= http.StatusBadRequest {
		return
	}
	m.recorder.RecordOnce(context.WithoutCancel(req.Context()), actorID, key)
}

// statusWriter remembers the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	// 1xx responses are followed by the final status.
	if w.status == 0 && code >= http.StatusOK {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// code reports 200 when the handler wrote nothing, as net/http does.
func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
