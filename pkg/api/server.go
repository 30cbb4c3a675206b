package api

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/medcopilot/medcopilot/pkg/config"
	"github.com/medcopilot/medcopilot/pkg/database"
	"github.com/medcopilot/medcopilot/pkg/events"
	"github.com/medcopilot/medcopilot/pkg/models"
	"github.com/medcopilot/medcopilot/pkg/storage"
)

// AnalysisService is the session lifecycle surface the handlers drive.
type AnalysisService interface {
	Start(ctx context.Context, intake models.Intake, imageRefs []string) (string, error)
	Cancel(sessionID string) error
	Session(sessionID string) (models.Session, error)
	Sessions() []models.Session
	ActiveSessions() int
	Delete(sessionID string) error
}

// ArchiveReader loads audit records of finished sessions.
type ArchiveReader interface {
	Get(ctx context.Context, id string) (*database.ArchivedSession, error)
}

// Server is the HTTP and WebSocket front end.
type Server struct {
	cfg         *config.ServerConfig
	echo        *echo.Echo
	httpServer  *http.Server
	sessions    AnalysisService
	broadcaster *events.Broadcaster
	store       storage.ArtifactStore

	archive ArchiveReader
	db      *sql.DB

	// baseCtx parents every request context, including hijacked WebSocket
	// connections that http.Server.Shutdown does not track.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates the server and registers all routes.
func NewServer(cfg *config.ServerConfig, sessions AnalysisService, broadcaster *events.Broadcaster, store storage.ArtifactStore) *Server {
	e := echo.New()
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         cfg,
		echo:        e,
		sessions:    sessions,
		broadcaster: broadcaster,
		store:       store,
		baseCtx:     baseCtx,
		cancelBase:  cancel,
	}
	s.httpServer = &http.Server{
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(securityHeaders())

	s.echo.GET("/", s.rootHandler)
	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/metrics", metricsHandler)
	s.echo.GET("/ws/:id", s.wsHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/analyze", s.analyzeHandler, maxBodyBytes(s.cfg.MaxUploadBytes))
	v1.GET("/sessions", s.listSessionsHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.POST("/sessions/:id/cancel", s.cancelSessionHandler)
	v1.DELETE("/sessions/:id", s.deleteSessionHandler)
	v1.GET("/stages", s.listStagesHandler)
}

// SetArchive enables the archive read endpoint and the database health
// check. db may be nil to skip the health check.
func (s *Server) SetArchive(archive ArchiveReader, db *sql.DB) {
	s.archive = archive
	s.db = db
	s.echo.GET("/api/v1/archive/sessions/:id", s.getArchivedSessionHandler)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones, then closes
// open WebSocket subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancelBase()
	return s.httpServer.Shutdown(ctx)
}
