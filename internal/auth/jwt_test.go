package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callhub/internal/config"

	"github.com/gin-gonic/gin"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "issuer", JWTAudience: "aud"})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newTestManager(t)

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "user-1", TokenTypeAccess, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, TokenTypeAccess, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := m.Verify(tok, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	tok, err := m.Issue(now, "u", TokenTypeRefresh, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, TokenTypeAccess, now); err != ErrTokenTypeMismatch {
		t.Fatalf("expected token_type mismatch, got %v", err)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	m := newTestManager(t)
	other, _ := NewManager(config.AuthConfig{JWTSecret: "other", JWTIssuer: "issuer", JWTAudience: "aud"})
	now := time.Now()
	tok, _ := other.Issue(now, "u", TokenTypeAccess, time.Hour)
	if _, err := m.Verify(tok, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected signature failure")
	}
}

func TestVerifyCredential(t *testing.T) {
	m := newTestManager(t)
	tok, _ := m.Issue(time.Now(), "alice", TokenTypeAccess, time.Hour)

	uid, err := m.VerifyCredential(context.Background(), tok)
	if err != nil || uid != "alice" {
		t.Fatalf("expected alice, got %q (%v)", uid, err)
	}
	if _, err := m.VerifyCredential(context.Background(), "garbage"); err == nil {
		t.Fatalf("expected garbage token to fail")
	}
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	tok, _ := m.Issue(time.Now(), "bob", TokenTypeAccess, time.Hour)

	r := gin.New()
	r.GET("/me", RequireAccessToken(m), func(c *gin.Context) {
		uid, err := UserIDFromGin(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, uid)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "bob" {
		t.Fatalf("expected 200 bob, got %d %q", w.Code, w.Body.String())
	}
}
