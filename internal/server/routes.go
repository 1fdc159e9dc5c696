package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/status", s.StatusHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	if s.store.Healthy() {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Snapshot())
}
