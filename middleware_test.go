package tally

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ryhazerus/tally/store"
)

func fileServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("file contents"))
	})
}

func TestMiddlewareRecordsDownloads(t *testing.T) {
	r := New()
	srv := httptest.NewServer(r.Middleware("/downloads/*", fileServer(),
		WithActorFunc(func(req *http.Request) string { return req.Header.Get("X-User") }),
	))
	defer srv.Close()

	get := func(user string) {
		t.Helper()
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/downloads/file42", nil)
		req.Header.Set("X-User", user)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	}

	get("u1")
	get("u1")
	get("u2")

	wantCount(t, r, "file42", 2)
}

func TestMiddlewareAnonymousCookie(t *testing.T) {
	r := New()
	h := r.Middleware("/downloads/*", fileServer())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/downloads/a", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DefaultCookieName {
		t.Fatalf("cookies = %v, want %s", cookies, DefaultCookieName)
	}

	// Same browser again.
	req := httptest.NewRequest(http.MethodGet, "/downloads/a", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)

	// A different browser.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/downloads/a", nil))

	wantCount(t, r, "a", 2)
	seen, err := r.Seen(context.Background(), cookies[0].Value, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("anonymous actor from cookie has not seen the key")
	}
}

func TestMiddlewarePassesThroughUnmatched(t *testing.T) {
	s := newFlakyStore(0)
	r := New(WithStore(s))
	h := r.Middleware("/downloads/*", fileServer())

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/about"},
		{http.MethodHead, "/downloads/a"},
		{http.MethodOptions, "/downloads/a"},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s %s: status = %d, want 200", tc.method, tc.path, rec.Code)
		}
	}
	if got := s.calls.Load(); got != 0 {
		t.Errorf("store calls = %d, want 0", got)
	}
}

func TestMiddlewareServesWhenRecordingFails(t *testing.T) {
	s := &flakyStore{Store: store.NewMemoryStore(), err: errors.New("permission denied")}
	r := New(WithStore(s))
	h := r.Middleware("/downloads/*", fileServer())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/downloads/a", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "file contents" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if s.calls.Load() != 1 {
		t.Errorf("store calls = %d, want 1", s.calls.Load())
	}
}

func TestMiddlewareIgnoresClientCancellation(t *testing.T) {
	r := New()
	h := r.Middleware("/downloads/*", fileServer(),
		WithActorFunc(func(*http.Request) string { return "u1" }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/downloads/a", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)

	wantCount(t, r, "a", 1)
}

func TestMiddlewareSkipsErrorResponses(t *testing.T) {
	r := New()
	mux := http.NewServeMux()
	mux.Handle("/downloads/file42", fileServer())
	h := r.Middleware("/downloads/*", mux,
		WithActorFunc(func(*http.Request) string { return "u1" }))

	for _, tc := range []struct {
		path string
		want int
	}{
		{"/downloads/missing", http.StatusNotFound},
		{"/downloads/file42", http.StatusOK},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.path, rec.Code, tc.want)
		}
	}

	wantCount(t, r, "missing", 0)
	wantCount(t, r, "file42", 1)
	seen, err := r.Seen(context.Background(), "u1", "missing")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("404 response was recorded as seen")
	}
}

func TestMiddlewareRecordsImplicitOK(t *testing.T) {
	r := New()
	silent := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	h := r.Middleware("/downloads/*", silent,
		WithActorFunc(func(*http.Request) string { return "u1" }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/downloads/a", nil))

	wantCount(t, r, "a", 1)
}
