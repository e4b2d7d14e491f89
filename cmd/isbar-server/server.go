package main

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/icu/isbar/internal/config"
	"github.com/icu/isbar/internal/domain/discharge"
	"github.com/icu/isbar/internal/domain/icucase"
	"github.com/icu/isbar/internal/platform/auth"
	"github.com/icu/isbar/internal/platform/middleware"
)

const version = "0.1.0"

// services are the wired domain services the router exposes.
type services struct {
	cases     *icucase.Service
	summaries *discharge.Service
	dbHealth  echo.HandlerFunc
}

// newRouter builds the echo instance: global middleware, health endpoints
// and the /api/v1 routes.
func newRouter(cfg *config.Config, logger zerolog.Logger, svc services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	for _, mw := range authMiddleware(cfg) {
		e.Use(mw)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Skipper:           auth.AuthSkipper,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
		rateLimitCfg.Skipper = auth.AuthSkipper
	}
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(middleware.Audit(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, isSummaryRoute))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if svc.dbHealth != nil {
		e.GET("/health/db", svc.dbHealth)
	}

	apiV1 := e.Group("/api/v1")

	auth.NewLoginHandler(auth.LoginConfig{
		Password:   cfg.LocalPassword,
		SigningKey: []byte(cfg.AuthSigningKey),
		Issuer:     cfg.AuthIssuer,
		TTL:        cfg.AuthTokenTTL,
	}, logger).RegisterRoutes(apiV1)

	icucase.NewHandler(svc.cases).RegisterRoutes(apiV1)
	discharge.NewHandler(svc.summaries).RegisterRoutes(apiV1)

	return e
}

// authMiddleware returns the authentication chain for cfg. Development
// admits anonymous callers as a local clinician; bearer tokens are still
// verified whenever a signing key is configured.
func authMiddleware(cfg *config.Config) []echo.MiddlewareFunc {
	var chain []echo.MiddlewareFunc
	if cfg.IsDev() {
		chain = append(chain, auth.DevAuthMiddleware())
	}
	if cfg.AuthSigningKey == "" {
		return chain
	}
	return append(chain, auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper: func(c echo.Context) bool {
			return auth.AuthSkipper(c) || auth.UserIDFromContext(c.Request().Context()) != ""
		},
	}))
}

// isSummaryRoute matches discharge summary generation, which is bounded by
// the generation client's own timeout.
func isSummaryRoute(c echo.Context) bool {
	return strings.HasSuffix(c.Path(), "/discharge-summary")
}
