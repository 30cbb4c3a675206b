package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/medcopilot/medcopilot/pkg/models"
)

var validStatuses = map[models.SessionStatus]bool{
	models.StatusInitialized: true,
	models.StatusRunning:     true,
	models.StatusCompleted:   true,
	models.StatusFailed:      true,
	models.StatusCancelled:   true,
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sess, err := s.sessions.Session(c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// listSessionsHandler handles GET /api/v1/sessions.
// Optional ?status=a,b filters by lifecycle status.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	var filter map[models.SessionStatus]bool
	if v := c.QueryParam("status"); v != "" {
		filter = make(map[models.SessionStatus]bool)
		for _, raw := range strings.Split(v, ",") {
			st := models.SessionStatus(strings.TrimSpace(raw))
			if !validStatuses[st] {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+string(st))
			}
			filter[st] = true
		}
	}

	all := s.sessions.Sessions()
	out := make([]models.SessionSummary, 0, len(all))
	for _, sess := range all {
		if filter != nil && !filter[sess.Status] {
			continue
		}
		out = append(out, sess.Summary())
	}
	return c.JSON(http.StatusOK, &SessionListResponse{Sessions: out, Count: len(out)})
}

// cancelSessionHandler handles POST /api/v1/sessions/:id/cancel.
func (s *Server) cancelSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if err := s.sessions.Cancel(sessionID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, &SessionActionResponse{
		SessionID: sessionID,
		Message:   "Session cancellation requested",
	})
}

// deleteSessionHandler handles DELETE /api/v1/sessions/:id.
// Only finished sessions can be removed.
func (s *Server) deleteSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if err := s.sessions.Delete(sessionID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &SessionActionResponse{
		SessionID: sessionID,
		Message:   "Session deleted",
	})
}
