package api

import (
	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler handles GET /ws/:id. It upgrades to WebSocket and streams the
// session's events until the client leaves or a newer subscriber replaces it.
func (s *Server) wsHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if _, err := s.sessions.Session(sessionID); err != nil {
		return mapServiceError(err)
	}

	// An empty allowlist falls back to the library's same-host origin check.
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedWSOrigins,
	})
	if err != nil {
		return err
	}

	s.broadcaster.HandleSubscriber(c.Request().Context(), sessionID, conn, s.cfg.WSWriteTimeout)
	return nil
}
