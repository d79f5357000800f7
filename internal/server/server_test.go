package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/remote/memtree"
	"github.com/brianly1003/flocksync/internal/remote/wsremote"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *Server, *memtree.Store, *authn.Service) {
	t.Helper()
	store, err := memtree.NewWithData(map[string]any{
		"flocks": map[string]any{"f1": map[string]any{"name": "Coop", "ownedBy": "u1"}},
	})
	if err != nil {
		t.Fatalf("NewWithData() error = %v", err)
	}
	accounts, err := authn.NewService(authn.NewMemoryUsers(), authn.Options{Secret: []byte("s"), Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(store, accounts, opts)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
	})
	return hs, srv, store, accounts
}

func wsURL(hs *httptest.Server) string {
	return "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
}

func getJSON(t *testing.T, url, token string, v any) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestServer_Health(t *testing.T) {
	hs, _, _, _ := newTestServer(t, Options{})
	c, err := wsremote.Dial(context.Background(), wsURL(hs))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = c.Close() }()
	if _, err := c.Subscribe(context.Background(), "eggs/f1"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	var health healthResponse
	if code := getJSON(t, hs.URL+"/health", "", &health); code != http.StatusOK {
		t.Fatalf("GET /health status = %d", code)
	}
	if health.Status != "ok" || health.Connections != 1 || health.Subscriptions != 1 {
		t.Errorf("health = %+v, want ok with 1 connection and 1 subscription", health)
	}
}

func TestServer_TreeRead(t *testing.T) {
	hs, _, _, _ := newTestServer(t, Options{})

	tests := []struct {
		path string
		want any
	}{
		{"/v1/tree/flocks/f1/name", "Coop"},
		{"/v1/tree/flocks/missing", nil},
		{"/v1/tree", map[string]any{"flocks": map[string]any{"f1": map[string]any{"name": "Coop", "ownedBy": "u1"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var res struct{ Value any }
			if code := getJSON(t, hs.URL+tt.path, "", &res); code != http.StatusOK {
				t.Fatalf("status = %d", code)
			}
			got, _ := json.Marshal(res.Value)
			want, _ := json.Marshal(tt.want)
			if string(got) != string(want) {
				t.Errorf("value = %s, want %s", got, want)
			}
		})
	}
}

func TestServer_RequireAuth(t *testing.T) {
	hs, _, _, accounts := newTestServer(t, Options{RequireAuth: true})
	ctx := context.Background()

	if code := getJSON(t, hs.URL+"/v1/tree/flocks", "", nil); code != http.StatusUnauthorized {
		t.Errorf("GET without token status = %d, want 401", code)
	}
	if code := getJSON(t, hs.URL+"/v1/tree/flocks", "garbage", nil); code != http.StatusUnauthorized {
		t.Errorf("GET with bad token status = %d, want 401", code)
	}

	tok, err := accounts.SignUp(ctx, "hen@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if code := getJSON(t, hs.URL+"/v1/tree/flocks", tok.Token, nil); code != http.StatusOK {
		t.Errorf("GET with token status = %d, want 200", code)
	}

	c, err := wsremote.Dial(ctx, wsURL(hs))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = c.Close() }()
	if _, err := c.Get(ctx, "flocks"); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Errorf("Get() before sign in error = %v, want ErrNotAuthenticated", err)
	}
	if _, err := c.Resume(ctx, tok.Token); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if v, err := c.Get(ctx, "flocks/f1/name"); err != nil || v != "Coop" {
		t.Errorf("Get() = %v, %v; want Coop", v, err)
	}
}

func TestServer_WebSocketSync(t *testing.T) {
	hs, _, store, _ := newTestServer(t, Options{})
	ctx := context.Background()

	c, err := wsremote.Dial(ctx, wsURL(hs))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	sub, err := c.Subscribe(ctx, "chickens/f1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	key, err := c.Push(ctx, "chickens/f1", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != domain.ChildAdded || ev.Key != key {
			t.Errorf("event = %+v, want added %s", ev, key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for child event")
	}
	if v, _ := store.Get(ctx, "chickens/f1/"+key+"/name"); v != "Ada" {
		t.Errorf("stored name = %v, want Ada", v)
	}
}

func TestServer_OriginCheck(t *testing.T) {
	hs, _, _, _ := newTestServer(t, Options{AllowedOrigins: []string{"https://flock.example"}})

	tests := []struct {
		origin string
		want   int
	}{
		{"https://evil.example", http.StatusForbidden},
		{"https://flock.example", http.StatusSwitchingProtocols},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, hs.URL+"/ws", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Connection", "Upgrade")
			req.Header.Set("Upgrade", "websocket")
			req.Header.Set("Sec-WebSocket-Version", "13")
			req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			_ = resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServer_RateLimit(t *testing.T) {
	hs, _, _, _ := newTestServer(t, Options{RateLimit: 2})
	codes := make([]int, 3)
	for i := range codes {
		codes[i] = getJSON(t, hs.URL+"/v1/tree/flocks", "", nil)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
	if code := getJSON(t, hs.URL+"/health", "", nil); code != http.StatusOK {
		t.Errorf("health status = %d, want 200 while limited", code)
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	accounts, _ := authn.NewService(authn.NewMemoryUsers(), authn.Options{Secret: []byte("s"), Cost: bcrypt.MinCost})
	srv := New(memtree.New(), accounts, Options{Host: "127.0.0.1", Port: 0, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
