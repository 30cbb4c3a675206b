package database

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medcopilot/medcopilot/pkg/models"
	"github.com/medcopilot/medcopilot/pkg/report"
)

// ErrNotFound is returned when an archived session does not exist.
var ErrNotFound = errors.New("archived session not found")

// archiveTimeout bounds one archive write so a slow database never holds
// up the session goroutine for long.
const archiveTimeout = 5 * time.Second

// ArchivedSession is the stored audit record of a finished session.
type ArchivedSession struct {
	ID             string                `json:"id"`
	Status         models.SessionStatus  `json:"status"`
	ChiefComplaint string                `json:"chief_complaint"`
	Pipeline       []string              `json:"pipeline"`
	Results        []models.StageResult  `json:"results"`
	Report         *models.Report        `json:"report,omitempty"`
	PartialReport  *models.PartialReport `json:"partial_report,omitempty"`
	Failure        *models.Failure       `json:"failure,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	CompletedAt    time.Time             `json:"completed_at"`
	ArchivedAt     time.Time             `json:"archived_at"`
}

// Archive writes terminal session snapshots to PostgreSQL.
type Archive struct {
	db     *stdsql.DB
	logger *slog.Logger
}

// NewArchive creates an archive over client's connection pool.
func NewArchive(client *Client) *Archive {
	return &Archive{
		db:     client.DB(),
		logger: slog.Default().With("component", "archive"),
	}
}

// SessionFinished archives s. Failures are logged and never propagate.
func (a *Archive) SessionFinished(ctx context.Context, s models.Session) {
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	if err := a.Save(ctx, s); err != nil {
		a.logger.Error("Failed to archive session", "session_id", s.ID, "status", s.Status, "error", err)
		return
	}
	a.logger.Debug("Session archived", "session_id", s.ID, "status", s.Status)
}

// Save upserts the audit record of a terminal session. Failed and cancelled
// sessions are stored with a partial report built from the stages that ran.
func (a *Archive) Save(ctx context.Context, s models.Session) error {
	if !s.Status.IsTerminal() {
		return fmt.Errorf("session %s is %s, only terminal sessions are archived", s.ID, s.Status)
	}

	completedAt := s.UpdatedAt
	if s.CompletedAt != nil {
		completedAt = *s.CompletedAt
	}

	var partial *models.PartialReport
	if s.Status != models.StatusCompleted {
		p := report.AggregatePartial(s.Intake, s.Results, s.Failure)
		partial = &p
	}

	pipelineJSON, err := marshalJSON(s.Pipeline)
	if err != nil {
		return err
	}
	resultsJSON, err := marshalJSON(s.Results)
	if err != nil {
		return err
	}
	reportJSON, err := marshalNullable(s.Report)
	if err != nil {
		return err
	}
	partialJSON, err := marshalNullable(partial)
	if err != nil {
		return err
	}
	failureJSON, err := marshalNullable(s.Failure)
	if err != nil {
		return err
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO analysis_sessions
			(id, status, chief_complaint, pipeline, results, report, partial_report, failure, created_at, completed_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb, $8::jsonb, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			results = EXCLUDED.results,
			report = EXCLUDED.report,
			partial_report = EXCLUDED.partial_report,
			failure = EXCLUDED.failure,
			completed_at = EXCLUDED.completed_at,
			archived_at = now()`,
		s.ID, string(s.Status), s.Intake.ChiefComplaint,
		pipelineJSON, resultsJSON, reportJSON, partialJSON, failureJSON,
		s.CreatedAt, completedAt)
	if err != nil {
		return fmt.Errorf("failed to insert archived session: %w", err)
	}
	return nil
}

// Get loads one archived session.
func (a *Archive) Get(ctx context.Context, id string) (*ArchivedSession, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, status, chief_complaint, pipeline, results, report, partial_report, failure,
		       created_at, completed_at, archived_at
		FROM analysis_sessions WHERE id = $1`, id)

	var (
		out                               ArchivedSession
		status                            string
		pipelineRaw, resultsRaw           []byte
		reportRaw, partialRaw, failureRaw []byte
	)
	err := row.Scan(&out.ID, &status, &out.ChiefComplaint, &pipelineRaw, &resultsRaw,
		&reportRaw, &partialRaw, &failureRaw, &out.CreatedAt, &out.CompletedAt, &out.ArchivedAt)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to query archived session: %w", err)
	}
	out.Status = models.SessionStatus(status)

	if err := json.Unmarshal(pipelineRaw, &out.Pipeline); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline: %w", err)
	}
	if err := json.Unmarshal(resultsRaw, &out.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	if err := unmarshalNullable(reportRaw, &out.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if err := unmarshalNullable(partialRaw, &out.PartialReport); err != nil {
		return nil, fmt.Errorf("failed to decode partial report: %w", err)
	}
	if err := unmarshalNullable(failureRaw, &out.Failure); err != nil {
		return nil, fmt.Errorf("failed to decode failure: %w", err)
	}
	return &out, nil
}

// CountByStatus returns the number of archived sessions per status.
func (a *Archive) CountByStatus(ctx context.Context) (map[models.SessionStatus]int, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT status, count(*) FROM analysis_sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count archived sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[models.SessionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan archived session count: %w", err)
		}
		out[models.SessionStatus(status)] = n
	}
	return out, rows.Err()
}

func marshalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode archive column: %w", err)
	}
	return string(raw), nil
}

// marshalNullable encodes v, mapping a nil pointer to SQL NULL.
func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return marshalJSON(v)
}

func unmarshalNullable[T any](raw []byte, out **T) error {
	if len(raw) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*out = &v
	return nil
}
