package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/auth"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/pkg/riskscore"
)

func createTestApp(t *testing.T) *App {
	t.Helper()
	app, err := New(logger.Nop(), Options{
		DBPath:  ":memory:",
		Addr:    ":0",
		BaseURL: "https://votes.example.com/",
		Auth:    auth.New("admin", "test-password"),
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app
}

func TestNew_InitializesApp(t *testing.T) {
	app := createTestApp(t)
	defer app.Close()

	if app.handlers == nil {
		t.Error("expected handlers to be initialized")
	}
	if app.repo == nil {
		t.Error("expected repo to be initialized")
	}
	if app.stopHub == nil {
		t.Error("expected hub to be running")
	}
	if app.BaseURL() != "https://votes.example.com" {
		t.Errorf("expected trimmed base URL, got %q", app.BaseURL())
	}
	if app.shutdownTimeout != 10*time.Second {
		t.Errorf("expected default shutdown timeout, got %v", app.shutdownTimeout)
	}
}

func TestNew_UsesConfiguredScorer(t *testing.T) {
	app, err := New(logger.Nop(), Options{
		DBPath:        ":memory:",
		BaseURL:       "http://localhost:8081",
		Scorer:        riskscore.NewMockClient(),
		ScorerTimeout: time.Second,
		Auth:          auth.New("admin", "pw"),
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer app.Close()
}

func TestNew_FailsWithBadDBPath(t *testing.T) {
	_, err := New(logger.Nop(), Options{
		DBPath: "/nonexistent/path/db.sqlite",
		Auth:   auth.New("admin", "pw"),
	})
	if err == nil {
		t.Error("expected error for invalid db path")
	}
}

func TestNew_RequiresAuth(t *testing.T) {
	if _, err := New(logger.Nop(), Options{DBPath: ":memory:"}); err == nil {
		t.Error("expected error without admin auth")
	}
}

func TestApp_Router_ServesRequests(t *testing.T) {
	app := createTestApp(t)
	defer app.Close()
	server := httptest.NewServer(app.Router())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for /healthz, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/api/admin/periods/1/publish", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for admin route, got %d", resp.StatusCode)
	}
}

func TestApp_SeedDemo(t *testing.T) {
	app := createTestApp(t)
	defer app.Close()

	if err := app.SeedDemo(context.Background()); err != nil {
		t.Fatalf("SeedDemo failed: %v", err)
	}

	server := httptest.NewServer(app.Router())
	defer server.Close()
	resp, err := http.Get(server.URL + "/api/periods/1/winners")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected seeded period to exist, got %d", resp.StatusCode)
	}
}

func TestApp_Run_StopsOnCancel(t *testing.T) {
	app := createTestApp(t)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_Run_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	app, err := New(logger.Nop(), Options{
		DBPath:  ":memory:",
		Addr:    ln.Addr().String(),
		BaseURL: "http://localhost",
		Auth:    auth.New("admin", "pw"),
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	defer app.Close()

	if err := app.Run(context.Background()); err == nil {
		t.Error("expected error when the address is in use")
	}
}

func TestResolveBaseURL(t *testing.T) {
	lan := mockNetworkProvider{interfaces: []networkInterface{mockInterface{
		flags: net.FlagUp,
		addrs: []net.Addr{&net.IPNet{IP: net.ParseIP("192.168.1.20"), Mask: net.CIDRMask(24, 32)}},
	}}}

	if got := resolveBaseURL("https://votes.example.com/", ":8081", lan); got != "https://votes.example.com" {
		t.Errorf("expected configured URL, got %q", got)
	}
	if got := resolveBaseURL("", ":8081", lan); got != "http://192.168.1.20:8081" {
		t.Errorf("expected LAN URL, got %q", got)
	}
	if got := resolveBaseURL("", ":8081", mockNetworkProvider{err: net.ErrClosed}); got != "http://localhost:8081" {
		t.Errorf("expected localhost fallback, got %q", got)
	}
}

// mockInterface implements networkInterface for testing
type mockInterface struct {
	flags net.Flags
	addrs []net.Addr
	err   error
}

func (m mockInterface) Flags() net.Flags {
	return m.flags
}

func (m mockInterface) Addrs() ([]net.Addr, error) {
	return m.addrs, m.err
}

// mockNetworkProvider implements networkProvider for testing
type mockNetworkProvider struct {
	interfaces []networkInterface
	err        error
}

func (m mockNetworkProvider) Interfaces() ([]networkInterface, error) {
	return m.interfaces, m.err
}

func TestGetPreferredIP(t *testing.T) {
	ipNet := func(s string) net.Addr {
		return &net.IPNet{IP: net.ParseIP(s), Mask: net.CIDRMask(24, 32)}
	}

	tests := []struct {
		name     string
		provider mockNetworkProvider
		want     string
	}{
		{"network error", mockNetworkProvider{err: net.ErrClosed}, "localhost"},
		{"addrs error", mockNetworkProvider{interfaces: []networkInterface{
			mockInterface{flags: net.FlagUp, err: net.ErrClosed},
		}}, "localhost"},
		{"interface down", mockNetworkProvider{interfaces: []networkInterface{
			mockInterface{addrs: []net.Addr{ipNet("192.168.1.5")}},
		}}, "localhost"},
		{"loopback interface", mockNetworkProvider{interfaces: []networkInterface{
			mockInterface{flags: net.FlagUp | net.FlagLoopback, addrs: []net.Addr{ipNet("127.0.0.1")}},
		}}, "localhost"},
		{"ip addr type", mockNetworkProvider{interfaces: []networkInterface{
			mockInterface{flags: net.FlagUp, addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("10.1.2.3")}}},
		}}, "10.1.2.3"},
		{"public fallback", mockNetworkProvider{interfaces: []networkInterface{
			mockInterface{flags: net.FlagUp, addrs: []net.Addr{ipNet("8.8.8.8")}},
		}}, "8.8.8.8"},
		{"private preferred", mockNetworkProvider{interfaces: []networkInterface{
			mockInterface{flags: net.FlagUp, addrs: []net.Addr{ipNet("8.8.8.8"), ipNet("172.20.0.4")}},
		}}, "172.20.0.4"},
		{"skips loopback ip and ipv6", mockNetworkProvider{interfaces: []networkInterface{
			mockInterface{flags: net.FlagUp, addrs: []net.Addr{ipNet("127.0.0.1"), ipNet("fe80::1"), ipNet("192.168.1.50")}},
		}}, "192.168.1.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getPreferredIP(tt.provider); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGetPreferredIP_RealNetwork(t *testing.T) {
	ip := getPreferredIP(realNetworkProvider{})
	if ip == "" {
		t.Fatal("expected non-empty IP")
	}
	if ip != "localhost" && net.ParseIP(ip) == nil && !strings.Contains(ip, ".") {
		t.Errorf("expected valid IP or localhost, got %q", ip)
	}
}
