package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/bleedingdev/salesdash/internal/config"
	"github.com/bleedingdev/salesdash/internal/session"
)

func testConfig() *config.Config {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Dashboard.MaxConnections = 2
	cfg.Dashboard.MaxUploadBytes = 64
	return cfg
}

func TestRouterRejectsRemoteClients(t *testing.T) {
	srv := NewServer(testConfig(), session.NewManager(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.7:40000"
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestRouterAppliesUploadLimit(t *testing.T) {
	srv := NewServer(testConfig(), session.NewManager(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/dataset", strings.NewReader(strings.Repeat("x", 200)))
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := NewServer(testConfig(), session.NewManager(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		cancel()
		t.Fatalf("Health request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if !gjson.GetBytes(body, "ok").Bool() {
		t.Errorf("Expected ok=true, got %s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Server did not stop after cancellation")
	}
}
