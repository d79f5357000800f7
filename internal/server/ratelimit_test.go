package server

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNewRateLimiter_Options(t *testing.T) {
	tests := []struct {
		name       string
		opts       []RateLimiterOption
		wantMax    int
		wantWindow time.Duration
	}{
		{"defaults", nil, DefaultMaxRequests, DefaultWindow},
		{"custom", []RateLimiterOption{WithMaxRequests(5), WithWindow(30 * time.Second)}, 5, 30 * time.Second},
		{"invalid ignored", []RateLimiterOption{WithMaxRequests(0), WithWindow(-1)}, DefaultMaxRequests, DefaultWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewRateLimiter(tt.opts...)
			defer l.Close()
			if l.maxRequests != tt.wantMax {
				t.Errorf("maxRequests = %d, want %d", l.maxRequests, tt.wantMax)
			}
			if l.window != tt.wantWindow {
				t.Errorf("window = %v, want %v", l.window, tt.wantWindow)
			}
		})
	}
}

func TestRateLimiter_Window(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := NewRateLimiter(WithMaxRequests(3), WithWindow(time.Minute), withClock(clock.Now))
	defer l.Close()

	for i := 0; i < 3; i++ {
		if !l.Allow("a") {
			t.Fatalf("request %d denied", i+1)
		}
		clock.Advance(10 * time.Second)
	}
	if l.Allow("a") {
		t.Error("4th request allowed")
	}
	if !l.Allow("b") {
		t.Error("other key denied")
	}
	if got := l.Remaining("a"); got != 0 {
		t.Errorf("Remaining(a) = %d, want 0", got)
	}

	// The first request leaves the window.
	clock.Advance(31 * time.Second)
	if got := l.Remaining("a"); got != 1 {
		t.Errorf("Remaining(a) = %d, want 1", got)
	}
	if !l.Allow("a") {
		t.Error("request after window slide denied")
	}
	if got := l.Remaining("unknown"); got != 3 {
		t.Errorf("Remaining(unknown) = %d, want 3", got)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := NewRateLimiter(WithWindow(time.Minute), withClock(clock.Now))
	defer l.Close()

	l.Allow("a")
	clock.Advance(3 * time.Minute)
	l.cleanup()

	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("buckets = %d after cleanup, want 0", n)
	}
	l.Close()
}

func TestIPKeyExtractor(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remote     string
		headers    map[string]string
		want       string
	}{
		{"ipv4", false, "192.168.1.1:12345", nil, "192.168.1.1"},
		{"ipv6", false, "[::1]:12345", nil, "::1"},
		{"no port", false, "10.0.0.1", nil, "10.0.0.1"},
		{"xff untrusted", false, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "10.0.0.1"},
		{"xff trusted", true, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.2"}, "1.2.3.4"},
		{"real ip trusted", true, "10.0.0.1:1", map[string]string{"X-Real-IP": " 5.6.7.8 "}, "5.6.7.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := IPKeyExtractor(tt.trustProxy)(r); got != tt.want {
				t.Errorf("IPKeyExtractor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewRateLimiter(WithMaxRequests(2))
	defer l.Close()
	h := RateLimitMiddleware(l, IPKeyExtractor(false))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	want := []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}
	for i, code := range want {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != code {
			t.Errorf("request %d status = %d, want %d", i+1, rec.Code, code)
		}
	}
}
