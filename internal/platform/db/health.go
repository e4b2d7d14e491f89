package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the connection pool snapshot reported by /health/db.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Dependency is an optional backing service probed alongside the database.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler pings the pool and every dependency. Any failure turns the
// response into a 503.
func HealthHandler(pool *pgxpool.Pool, deps ...Dependency) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		all := append([]Dependency{{Name: "postgres", Ping: pool.Ping}}, deps...)
		results, healthy := checkDependencies(ctx, all)

		body := map[string]interface{}{
			"status":       "healthy",
			"pool":         GetPoolStats(pool),
			"dependencies": results,
		}
		if !healthy {
			body["status"] = "unhealthy"
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}

func checkDependencies(ctx context.Context, deps []Dependency) (map[string]string, bool) {
	results := make(map[string]string, len(deps))
	healthy := true
	for _, d := range deps {
		if err := d.Ping(ctx); err != nil {
			results[d.Name] = err.Error()
			healthy = false
			continue
		}
		results[d.Name] = "ok"
	}
	return results, healthy
}
