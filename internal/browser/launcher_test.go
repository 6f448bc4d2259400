package browser

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func serverConfig(t *testing.T, srv *httptest.Server) Config {
	t.Helper()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	p, _ := strconv.Atoi(port)
	return Config{CDPAddress: host, CDPPort: p, ReadyWait: 2 * time.Second}
}

func TestArgs(t *testing.T) {
	l := NewLauncher(Config{
		CDPAddress: "127.0.0.1",
		CDPPort:    9333,
		ProfileDir: "/tmp/p",
		StartURL:   "https://example.com",
		Headless:   true,
		ExtraArgs:  []string{"--mute-audio"},
	})
	args := l.args()
	joined := strings.Join(args, " ")
	for _, want := range []string{"--remote-debugging-port=9333", "--user-data-dir=/tmp/p", "--headless=new", "--mute-audio"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args() = %v; want %q", args, want)
		}
	}
	if args[len(args)-1] != "https://example.com" {
		t.Fatalf("last arg = %q; want start URL", args[len(args)-1])
	}
}

func TestLaunchSkipsWhenPortInUse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	l := NewLauncher(serverConfig(t, srv))
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v; want nil", err)
	}
	if l.Running() {
		t.Fatalf("Running() = true; want false for an existing browser")
	}
	l.Stop()
}

func TestWaitForCDP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome/140"}`))
	}))
	defer srv.Close()

	l := NewLauncher(serverConfig(t, srv))
	if err := l.waitForCDP(context.Background()); err != nil {
		t.Fatalf("waitForCDP() error = %v; want nil", err)
	}
}

func TestWaitForCDPTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := serverConfig(t, srv)
	cfg.ReadyWait = 600 * time.Millisecond
	if err := NewLauncher(cfg).waitForCDP(context.Background()); err == nil {
		t.Fatalf("waitForCDP() error = nil; want timeout")
	}
}
