package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// getArchivedSessionHandler handles GET /api/v1/archive/sessions/:id.
func (s *Server) getArchivedSessionHandler(c *echo.Context) error {
	if s.archive == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "archive not enabled")
	}
	rec, err := s.archive.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, rec)
}
