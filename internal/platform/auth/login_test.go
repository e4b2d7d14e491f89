package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func doLogin(t *testing.T, h *LoginHandler, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, h.Login(c)
}

func TestLogin_Success(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := NewLoginHandler(LoginConfig{
		Password:   "ward-terminal",
		SigningKey: testSigningKey,
		Issuer:     "isbar",
		TTL:        12 * time.Hour,
	}, zerolog.Nop())
	h.now = func() time.Time { return now }

	rec, err := doLogin(t, h, `{"password":"ward-terminal"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.ExpiresAt.Equal(now.Add(12 * time.Hour)) {
		t.Errorf("expected expiry 12h after issue, got %v", resp.ExpiresAt)
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
		return testSigningKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now.Add(time.Minute) }))
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.Issuer != "isbar" || len(claims.Roles) != 1 || claims.Roles[0] != RoleClinician {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h := NewLoginHandler(LoginConfig{Password: "ward-terminal", SigningKey: testSigningKey, TTL: time.Hour}, zerolog.Nop())

	_, err := doLogin(t, h, `{"password":"guess"}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestLogin_NotConfigured(t *testing.T) {
	h := NewLoginHandler(LoginConfig{TTL: time.Hour}, zerolog.Nop())

	_, err := doLogin(t, h, `{"password":""}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
}

func TestLogin_BadBody(t *testing.T) {
	h := NewLoginHandler(LoginConfig{Password: "x", SigningKey: testSigningKey, TTL: time.Hour}, zerolog.Nop())

	_, err := doLogin(t, h, `{"password":`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
