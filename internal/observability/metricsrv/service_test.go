package metricsrv

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	logx "pricebot/pkg/logx"
)

func startService(t *testing.T, cfg Config) *Service {
	t.Helper()
	s := New(cfg, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("metrics server did not bind")
	}
	return s
}

func get(t *testing.T, url string, header map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestServesMetrics(t *testing.T) {
	t.Parallel()
	s := startService(t, Config{Enabled: true, Addr: "127.0.0.1:0", Path: "stats"})
	code, body := get(t, "http://"+s.Addr()+"/stats", nil)
	if code != http.StatusOK || !strings.Contains(body, "go_goroutines") {
		t.Fatalf("GET /stats = %d", code)
	}
	if code, body := get(t, "http://"+s.Addr()+"/healthz", nil); code != http.StatusOK || body != "ok" {
		t.Fatalf("GET /healthz = %d %q", code, body)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	s := startService(t, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "sekret"})
	base := "http://" + s.Addr() + DefaultPath

	if code, _ := get(t, base, nil); code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", code)
	}
	if code, _ := get(t, base+"?token=sekret", nil); code != http.StatusOK {
		t.Fatalf("query token: %d", code)
	}
	if code, _ := get(t, base, map[string]string{"Authorization": "Bearer sekret"}); code != http.StatusOK {
		t.Fatalf("bearer token: %d", code)
	}
}

func TestReconfigureDisableStops(t *testing.T) {
	t.Parallel()
	s := startService(t, Config{Enabled: true, Addr: "127.0.0.1:0"})
	if s.Addr() == "" {
		t.Fatal("expected bound address")
	}
	s.Reconfigure(context.Background(), Config{Enabled: false})
	if s.Addr() != "" || s.Enabled() {
		t.Fatalf("still serving on %q", s.Addr())
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:80":   true,
		"[::1]:9090":     true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.2:9090":  false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
