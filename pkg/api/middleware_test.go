package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(securityHeaders())
	e.GET("/test", func(c *echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestMaxBodyBytes(t *testing.T) {
	newEcho := func(limit int64) *echo.Echo {
		e := echo.New()
		e.POST("/upload", func(c *echo.Context) error {
			if _, err := io.ReadAll(c.Request().Body); err != nil {
				return mapServiceError(err)
			}
			return c.String(http.StatusOK, "ok")
		}, maxBodyBytes(limit))
		return e
	}

	tests := []struct {
		name     string
		limit    int64
		body     string
		wantCode int
	}{
		{"within limit", 8, "12345678", http.StatusOK},
		{"over limit", 8, "123456789", http.StatusRequestEntityTooLarge},
		{"unbounded", 0, strings.Repeat("x", 1024), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newEcho(tt.limit).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
