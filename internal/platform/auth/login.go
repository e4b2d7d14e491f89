package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// LoginConfig configures the shared-password login used by ward terminals.
type LoginConfig struct {
	Password   string
	SigningKey []byte
	Issuer     string
	TTL        time.Duration
}

type LoginHandler struct {
	cfg    LoginConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewLoginHandler(cfg LoginConfig, logger zerolog.Logger) *LoginHandler {
	return &LoginHandler{cfg: cfg, logger: logger, now: time.Now}
}

func (h *LoginHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *LoginHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if h.cfg.Password == "" || len(h.cfg.SigningKey) == 0 {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "local login is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Password)) != 1 {
		h.logger.Warn().Str("remote_ip", c.RealIP()).Msg("login rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	token, expiresAt, err := IssueToken(h.cfg.SigningKey, h.cfg.Issuer, h.cfg.TTL, h.now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue session")
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// IssueToken signs an HS256 clinician session valid for ttl from now.
func IssueToken(key []byte, issuer string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(ttl).UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "local-clinician",
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Roles: []string{RoleClinician},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
