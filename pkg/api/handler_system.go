package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medcopilot/medcopilot/pkg/database"
	"github.com/medcopilot/medcopilot/pkg/pipeline"
	"github.com/medcopilot/medcopilot/pkg/version"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

// rootHandler handles GET /.
func (s *Server) rootHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &BannerResponse{
		Service: version.AppName,
		Version: version.GitCommit,
		Status:  "running",
		Stages:  pipeline.Len(),
	})
}

// healthHandler handles GET /health.
// The archive database is optional, so an unreachable one degrades the
// status without failing the probe.
func (s *Server) healthHandler(c *echo.Context) error {
	resp := &HealthResponse{
		Status:         healthStatusHealthy,
		Version:        version.GitCommit,
		ActiveSessions: s.sessions.ActiveSessions(),
	}
	if s.broadcaster != nil {
		resp.Subscribers = s.broadcaster.Subscribers()
	}

	if s.db != nil {
		resp.Checks = make(map[string]HealthCheck)
		if _, err := database.Health(c.Request().Context(), s.db); err != nil {
			resp.Status = healthStatusDegraded
			resp.Checks["database"] = HealthCheck{Status: "unhealthy", Message: err.Error()}
		} else {
			resp.Checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// listStagesHandler handles GET /api/v1/stages.
func (s *Server) listStagesHandler(c *echo.Context) error {
	stages := pipeline.ListStages()
	return c.JSON(http.StatusOK, &StagesResponse{Stages: stages, Count: len(stages)})
}

var promHandler = promhttp.Handler()

// metricsHandler handles GET /metrics.
func metricsHandler(c *echo.Context) error {
	promHandler.ServeHTTP(c.Response(), c.Request())
	return nil
}
