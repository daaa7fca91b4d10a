package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// mockValidator is a configurable TokenValidator for middleware tests.
type mockValidator struct {
	claims *Claims
	err    error
}

func (m *mockValidator) ValidateToken(tokenString string) (*Claims, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.claims, nil
}

func (m *mockValidator) Close() {}

func TestRequireAuth_MissingHeader(t *testing.T) {
	mw := NewMiddleware(&mockValidator{}, zap.NewNop())

	called := false
	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/clients", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("handler should not be called without auth header")
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	mw := NewMiddleware(&mockValidator{err: errors.New("expired")}, zap.NewNop())

	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for invalid token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_MissingTenantID(t *testing.T) {
	mw := NewMiddleware(&mockValidator{claims: &Claims{}}, zap.NewNop())

	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called without tenant claim")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRequireAuth_Success(t *testing.T) {
	claims := &Claims{TenantID: "a6a8431e-69b9-4bfb-9b71-a2e949dc65a1"}
	mw := NewMiddleware(&mockValidator{claims: claims}, zap.NewNop())

	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		got, ok := GetClaims(r.Context())
		if !ok {
			t.Fatal("expected claims in context")
		}
		if got.TenantID != claims.TenantID {
			t.Errorf("expected tenant %s, got %s", claims.TenantID, got.TenantID)
		}

		tenantID, err := TenantIDFromContext(r.Context())
		if err != nil {
			t.Fatalf("TenantIDFromContext failed: %v", err)
		}
		if tenantID.String() != claims.TenantID {
			t.Errorf("unexpected tenant UUID %s", tenantID)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
