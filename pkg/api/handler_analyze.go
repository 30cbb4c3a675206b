package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling file parts to disk.
const multipartMemory = 8 << 20

// analyzeHandler handles POST /api/v1/analyze.
// Accepts a JSON AnalyzeRequest or a multipart form with an "intake" JSON
// field and "images" file parts. Returns 202 with the new session id.
func (s *Server) analyzeHandler(c *echo.Context) error {
	var (
		req     AnalyzeRequest
		cleanup func()
		err     error
	)
	if strings.HasPrefix(c.Request().Header.Get("Content-Type"), "multipart/form-data") {
		req, cleanup, err = s.bindMultipart(c)
	} else if err = json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if !errors.As(err, &maxErr) {
			err = echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return mapServiceError(err)
	}

	sessionID, err := s.sessions.Start(c.Request().Context(), req.Intake, req.ImageRefs)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return mapServiceError(err)
	}

	return c.JSON(http.StatusAccepted, &AnalyzeResponse{
		SessionID:    sessionID,
		Status:       "started",
		WebSocketURL: "/ws/" + sessionID,
		ImageRefs:    req.ImageRefs,
	})
}

// bindMultipart parses the intake field and stores every "images" part.
// The returned cleanup removes the stored images; it is nil when none were saved.
func (s *Server) bindMultipart(c *echo.Context) (AnalyzeRequest, func(), error) {
	var req AnalyzeRequest
	r := c.Request()
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, nil, err
		}
		return req, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	raw := r.FormValue("intake")
	if raw == "" {
		return req, nil, echo.NewHTTPError(http.StatusBadRequest, "intake field is required")
	}
	if err := json.Unmarshal([]byte(raw), &req.Intake); err != nil {
		return req, nil, echo.NewHTTPError(http.StatusBadRequest, "intake field is not valid JSON")
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		return req, nil, nil
	}
	if s.store == nil {
		return req, nil, echo.NewHTTPError(http.StatusServiceUnavailable, "image upload not available")
	}

	uploadID := uuid.NewString()
	cleanup := func() {
		if err := s.store.Remove(uploadID); err != nil {
			slog.Warn("Failed to remove rejected upload", "upload_id", uploadID, "error", err)
		}
	}
	for idx, fh := range files {
		ref, err := s.saveImage(uploadID, idx, fh)
		if err != nil {
			cleanup()
			return req, nil, err
		}
		req.ImageRefs = append(req.ImageRefs, ref)
	}
	return req, cleanup, nil
}

func (s *Server) saveImage(uploadID string, idx int, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open image part %d: %w", idx, err)
	}
	defer func() { _ = f.Close() }()
	return s.store.Save(uploadID, idx, fh.Filename, f)
}
