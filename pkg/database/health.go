package database

import (
	"context"
	"database/sql"
	"time"
)

// healthProbeTimeout bounds the ping issued by Health when the caller's
// context carries no deadline of its own.
const healthProbeTimeout = 2 * time.Second

// HealthStatus reports archive database reachability and pool usage.
type HealthStatus struct {
	Status         string `json:"status"`
	LatencyMs      int64  `json:"latency_ms"`
	OpenConns      int    `json:"open_connections"`
	InUse          int    `json:"in_use"`
	Idle           int    `json:"idle"`
	MaxOpenConns   int    `json:"max_open_conns"`
	ArchivedTotal  int64  `json:"archived_sessions"`
	ArchiveStatErr string `json:"archive_stat_error,omitempty"`
}

// Health pings db and, when reachable, counts archived sessions.
// A failed ping returns an "unhealthy" status together with the error.
func Health(ctx context.Context, db *sql.DB) (*HealthStatus, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, healthProbeTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", LatencyMs: time.Since(start).Milliseconds()}, err
	}
	latency := time.Since(start).Milliseconds()

	stats := db.Stats()
	hs := &HealthStatus{
		Status:       "healthy",
		LatencyMs:    latency,
		OpenConns:    stats.OpenConnections,
		InUse:        stats.InUse,
		Idle:         stats.Idle,
		MaxOpenConns: stats.MaxOpenConnections,
	}
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM analysis_sessions`).Scan(&hs.ArchivedTotal); err != nil {
		hs.ArchiveStatErr = err.Error()
	}
	return hs, nil
}
