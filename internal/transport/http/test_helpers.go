package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tripdesk/tripdesk-server/internal/auth"
	"github.com/tripdesk/tripdesk-server/internal/config"
	"github.com/tripdesk/tripdesk-server/internal/core"
	"github.com/tripdesk/tripdesk-server/internal/store"
	"github.com/tripdesk/tripdesk-server/internal/store/sqlite"
)

func testLogger() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.Store) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, st, jwtConfig)
}

// startTestServer wires a store, hub and HTTP server around an
// in-memory database.
func startTestServer(t *testing.T) (*httptest.Server, store.Store, *auth.Service) {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(t, st)

	hub := core.NewHub(st, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, st, authService, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
		WSSendsPerMinute:  0,
	}, testLogger())

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, st, authService
}

// registerTestUser registers a site user over the API and returns the
// auth response with token and id.
func registerTestUser(t *testing.T, ts *httptest.Server, name, email string) AuthResponse {
	t.Helper()

	body, _ := json.Marshal(RegisterRequest{Name: name, Email: email, Password: "secret123"})
	resp, err := ts.Client().Post(ts.URL+"/api/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		t.Fatalf("register returned status %d", resp.StatusCode)
	}

	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return out
}

// loginTestAdmin provisions a staff account directly in the store and
// logs it in over the API.
func loginTestAdmin(t *testing.T, ts *httptest.Server, st store.Store, name, email string) AuthResponse {
	t.Helper()

	hashed, err := auth.HashPassword("secret123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := st.CreateAdmin(context.Background(), name, email, hashed); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	body, _ := json.Marshal(LoginRequest{Email: email, Password: "secret123"})
	resp, err := ts.Client().Post(ts.URL+"/api/admin/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("admin login request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("admin login returned status %d", resp.StatusCode)
	}

	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode admin login response: %v", err)
	}
	return out
}
