package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/medcopilot/medcopilot/pkg/events"
	"github.com/medcopilot/medcopilot/pkg/metrics"
	"github.com/medcopilot/medcopilot/pkg/models"
	"github.com/medcopilot/medcopilot/pkg/pipeline"
	"github.com/medcopilot/medcopilot/pkg/report"
	"github.com/medcopilot/medcopilot/pkg/session"
	"github.com/medcopilot/medcopilot/pkg/stage"
)

const cancelledMessage = "analysis cancelled"

// run executes the pipeline of one session. Cancellation of ctx is checked
// only between stages; stage calls and event delivery use a context that
// ignores it.
func (o *Orchestrator) run(ctx context.Context, s models.Session, stages []pipeline.StageDescriptor) {
	log := o.logger.With("session_id", s.ID)
	work := context.WithoutCancel(ctx)
	results := make([]models.StageResult, 0, len(stages))

	for i, desc := range stages {
		if ctx.Err() != nil {
			o.cancel(work, log, s.ID)
			return
		}

		if err := o.registry.MarkRunning(s.ID); err != nil {
			log.Error("Failed to mark session running", "error", err)
			return
		}

		o.publish(work, s.ID, events.StageStarted(s.ID, desc.Name, desc.Phase, o.now()))
		log.Debug("Stage started", "stage", desc.Name, "position", i+1, "of", len(stages))

		started := o.now()
		res, err := o.runner.Run(work, desc, stage.SessionContext{
			SessionID: s.ID,
			Intake:    s.Intake,
			ImageRefs: s.ImageRefs,
			Prior:     results,
		})
		elapsed := o.now().Sub(started)
		if err != nil {
			o.fail(work, log, s, desc, err, elapsed)
			return
		}

		if err := o.registry.AppendResult(s.ID, res); err != nil {
			log.Error("Failed to record stage result", "stage", desc.Name, "error", err)
			o.fail(work, log, s, desc, err, elapsed)
			return
		}
		metrics.ObserveStage(desc.Name, metrics.OutcomeCompleted, elapsed)
		results = append(results, res)

		o.publish(work, s.ID, events.StageCompleted(s.ID, res))
		log.Debug("Stage completed", "stage", desc.Name, "confidence", res.Confidence)
	}

	rep := report.Aggregate(s.Intake, results)
	done, err := o.registry.SetTerminal(s.ID, models.StatusCompleted, session.Terminal{Report: &rep})
	if err != nil {
		log.Error("Failed to complete session", "error", err)
		return
	}
	o.publish(work, s.ID, events.AnalysisComplete(s.ID, rep, o.now()))
	log.Info("Session completed", "urgency", rep.Urgency, "overall_confidence", rep.OverallConfidence)
	o.finished(work, done)
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, s models.Session, desc pipeline.StageDescriptor, err error, elapsed time.Duration) {
	kind := models.ErrorKindStageExecution
	var serr *stage.StageError
	if errors.As(err, &serr) {
		kind = serr.Kind
	}

	outcome := metrics.OutcomeFailed
	if kind == models.ErrorKindStageTimeout {
		outcome = metrics.OutcomeTimeout
	}
	metrics.ObserveStage(desc.Name, outcome, elapsed)

	failure := &models.Failure{StageName: desc.Name, Kind: kind, Message: err.Error()}
	done, terr := o.registry.SetTerminal(s.ID, models.StatusFailed, session.Terminal{Failure: failure})
	if terr != nil {
		log.Error("Failed to mark session failed", "stage", desc.Name, "error", terr)
		return
	}
	o.publish(ctx, s.ID, events.Error(s.ID, desc.Name, kind, failure.Message, o.now()))
	log.Warn("Session failed", "stage", desc.Name, "kind", kind, "error", err)
	o.finished(ctx, done)
}

func (o *Orchestrator) cancel(ctx context.Context, log *slog.Logger, sessionID string) {
	done, err := o.registry.SetTerminal(sessionID, models.StatusCancelled, session.Terminal{})
	if err != nil {
		log.Error("Failed to mark session cancelled", "error", err)
		return
	}
	o.publish(ctx, sessionID, events.Error(sessionID, "", models.ErrorKindCancelled, cancelledMessage, o.now()))
	log.Info("Session cancelled", "stages_completed", len(done.Results))
	o.finished(ctx, done)
}

// publish is best-effort; delivery failures are handled by the publisher.
func (o *Orchestrator) publish(ctx context.Context, sessionID string, ev events.Event) {
	_ = o.publisher.Publish(ctx, sessionID, ev)
}

func (o *Orchestrator) finished(ctx context.Context, s models.Session) {
	metrics.RecordSessionFinished(string(s.Status))
	for _, obs := range o.observers {
		obs.SessionFinished(ctx, s)
	}
}
