// Package admin serves liveness, readiness and Prometheus metrics over HTTP.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency probed by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type statusResponse struct {
	Status string            `json:"status"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Router builds the admin echo instance; deps are probed by name on /readyz.
func Router(deps map[string]Pinger, log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", Healthz)
	e.GET("/readyz", Readyz(deps, log))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// Healthz liveness.
func Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

// Readyz pings every dependency within a short deadline.
func Readyz(deps map[string]Pinger, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 800*time.Millisecond)
		defer cancel()
		failed := map[string]string{}
		for name, p := range deps {
			if err := p.Ping(ctx); err != nil {
				log.Warn("readiness probe failed", zap.String("dep", name), zap.Error(err))
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			return c.JSON(http.StatusServiceUnavailable, statusResponse{Status: "not ready", Failed: failed})
		}
		return c.JSON(http.StatusOK, statusResponse{Status: "ready"})
	}
}
