package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tripdesk/tripdesk-server/internal/store/sqlite"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewService(st, st, &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
}

func TestRegisterAndLoginUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, err := svc.RegisterUser(ctx, "Maya", "maya@example.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate register token: %v", err)
	}
	if claims.Role != RoleUser || claims.IsAdmin() {
		t.Fatalf("expected user role, got %q", claims.Role)
	}
	if claims.SubjectID == "" || claims.Name != "Maya" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	loginToken, err := svc.LoginUser(ctx, "maya@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	loginClaims, err := svc.ValidateToken(loginToken)
	if err != nil {
		t.Fatalf("validate login token: %v", err)
	}
	if loginClaims.SubjectID != claims.SubjectID {
		t.Fatalf("login subject %s, want %s", loginClaims.SubjectID, claims.SubjectID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterUser(ctx, "Maya", "maya@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "Other", "maya@example.com", "secret2"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterUser(ctx, "Maya", "maya@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.LoginUser(ctx, "maya@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.LoginUser(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterUser(ctx, "Maya", "not-an-email", "secret1"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "Maya", "maya@example.com", "short"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestAdminLoginIssuesAdminRole(t *testing.T) {
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hash, err := HashPassword("opssecret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := st.CreateAdmin(context.Background(), "Agent", "agent@example.com", hash); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	svc := NewService(st, st, &JWTConfig{Secret: []byte("s"), TTL: time.Hour})
	token, err := svc.LoginAdmin(context.Background(), "agent@example.com", "opssecret")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !claims.IsAdmin() {
		t.Fatalf("expected admin claims, got %+v", claims)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("right"), Issuer: "tripdesk", Audience: "tripdesk", TTL: time.Hour}
	token, err := GenerateToken(cfg, "u1", "Maya", RoleUser)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := ValidateToken(&JWTConfig{Secret: []byte("wrong")}, token); err == nil {
		t.Fatal("token validated with wrong secret")
	}
	if _, err := ValidateToken(&JWTConfig{Secret: []byte("right"), Issuer: "other"}, token); err == nil {
		t.Fatal("token validated with wrong issuer")
	}
	if _, err := ValidateToken(cfg, token); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
}
