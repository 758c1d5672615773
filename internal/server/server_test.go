package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rootsense/rootsense/internal/config"
)

func TestIsLoopbackListenAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:8787": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":8787":          false,
		"0.0.0.0:8787":   false,
		"example.com:80": false,
		"":               false,
	}
	for addr, want := range cases {
		if got := isLoopbackListenAddr(addr); got != want {
			t.Errorf("isLoopbackListenAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestNew_RefusesOpenBindWithoutKey(t *testing.T) {
	cfg := config.Default().Server
	cfg.Addr = "0.0.0.0:0"
	if _, err := New(cfg, http.NotFoundHandler(), nil); err == nil {
		t.Fatal("expected refusal for non-loopback bind without api key")
	}
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	cfg := config.Default().Server
	cfg.Addr = "127.0.0.1:0"
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
	srv, err := New(cfg, h, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "pong" {
		t.Fatalf("body = %q", b)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
