package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"assetdesk.org/internal/logging"
)

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc-123" || rr.Header().Get(requestIDHeader) != "abc-123" {
		t.Fatalf("incoming id not propagated: ctx=%q header=%q", seen, rr.Header().Get(requestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", 200))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(requestIDHeader); len(got) != 36 || got != seen {
		t.Fatalf("oversized id should be replaced by a uuid, got %q", got)
	}
}

func TestLoggingWritesRequestComplete(t *testing.T) {
	var buf bytes.Buffer
	restore := logging.SetOutput(&buf)
	defer restore()

	h := RequestID(Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	req := httptest.NewRequest(http.MethodPost, "/api/things", nil)
	req.Header.Set(requestIDHeader, "req-42")
	req.Header.Set("User-Agent", "probe")
	req.RemoteAddr = "10.1.2.3:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		if json.Unmarshal([]byte(line), &m) == nil && m["message"] == "request_complete" {
			entry = m
		}
	}
	if entry == nil {
		t.Fatalf("no request_complete line in %q", buf.String())
	}
	if entry["method"] != "POST" || entry["path"] != "/api/things" || entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected request fields: %v", entry)
	}
	if entry["request_id"] != "req-42" || entry["remote_ip"] != "10.1.2.3" || entry["user_agent"] != "probe" {
		t.Fatalf("unexpected context fields: %v", entry)
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Fatalf("duration missing: %v", entry)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	for k, v := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rr.Header().Get(k); got != v {
			t.Fatalf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := MaxBodyBytes(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v map[string]string
		if err := decodeJSON(r, &v); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"far too long"}`)))
	assertError(t, rr, http.StatusBadRequest, "request body too large")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("small body rejected: %d", rr.Code)
	}
}

func TestDecodeJSONErrors(t *testing.T) {
	cases := map[string]struct {
		body  string
		limit int64
		want  string
	}{
		"trailing data": {body: `{"a":"b"} {"c":"d"}`, want: "unexpected data after JSON body"},
		"empty":         {body: "  ", want: "request body is required"},
		"malformed":     {body: `{"a":`, want: "malformed JSON body"},
		"over limit":    {body: `{"a":"` + strings.Repeat("x", 100) + `"}`, limit: 16, want: "request body too large"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(tc.body)))
			if tc.limit > 0 {
				req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, tc.limit)
			}
			var v map[string]string
			if err := decodeJSON(req, &v); err == nil || err.Error() != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(0.001, 2)
	defer l.Stop()
	defer l.Stop()

	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("10.0.0.1"); !ok {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	ok, wait := l.allow("10.0.0.1")
	if ok || wait <= 0 {
		t.Fatalf("expected rejection with a wait, got ok=%v wait=%v", ok, wait)
	}
	if ok, _ := l.allow("10.0.0.2"); !ok {
		t.Fatal("buckets must be per IP")
	}

	h := l.Middleware("slow down")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assertError(t, rr, http.StatusTooManyRequests, "slow down")
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:8080"
	if got := clientIP(req); got != "192.0.2.7" {
		t.Fatalf("clientIP = %q", got)
	}
	req.RemoteAddr = "unix-socket"
	if got := clientIP(req); got != "unix-socket" {
		t.Fatalf("clientIP = %q", got)
	}
}
