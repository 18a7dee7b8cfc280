package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware_RoundTrip(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	rec := httptest.NewRecorder()
	auth.SetAuthCookie(rec, 42)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])

	var gotID int64
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id missing from context")
		}
		gotID = id
	}))

	respRec := httptest.NewRecorder()
	handler.ServeHTTP(respRec, req)

	if respRec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", respRec.Code, http.StatusOK)
	}
	if gotID != 42 {
		t.Fatalf("user id = %d, want 42", gotID)
	}
}

func TestAuthMiddleware_MissingCookie(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not be called without cookie")
	}))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_TamperedCookie(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	rec := httptest.NewRecorder()
	auth.SetAuthCookie(rec, 1)
	cookie := rec.Result().Cookies()[0]
	cookie.Value = "999." + cookie.Value[len("1."):]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	respRec := httptest.NewRecorder()
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not be called with tampered cookie")
	}))
	handler.ServeHTTP(respRec, req)

	if respRec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", respRec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_DifferentSecrets(t *testing.T) {
	issuer := NewAuthMiddleware("secret-a")
	verifier := NewAuthMiddleware("secret-b")

	rec := httptest.NewRecorder()
	issuer.SetAuthCookie(rec, 7)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])

	respRec := httptest.NewRecorder()
	handler := verifier.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not be called with foreign cookie")
	}))
	handler.ServeHTTP(respRec, req)

	if respRec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", respRec.Code, http.StatusUnauthorized)
	}
}
