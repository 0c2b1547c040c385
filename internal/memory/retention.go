package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

type RetentionReport struct {
	ResultsDeleted    int64 `json:"results_deleted"`
	ExecutionsDeleted int64 `json:"executions_deleted"`
	DecisionsTrimmed  int64 `json:"decisions_trimmed"`
}

func (r RetentionReport) Total() int64 {
	return r.ResultsDeleted + r.ExecutionsDeleted + r.DecisionsTrimmed
}

// StartRetention runs the cleanup job on the configured cron schedule
// until the context is cancelled.
func (b *Bank) StartRetention(ctx context.Context) {
	schedule := b.cfg.RetentionSchedule
	if schedule == "" {
		schedule = "@hourly"
	}

	slog.Info("memory retention started", "schedule", schedule)

	for {
		next, err := gronx.NextTick(schedule, false)
		if err != nil {
			slog.Error("invalid retention schedule", "schedule", schedule, "error", err)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("memory retention stopped")
			return
		case <-timer.C:
			report, err := b.RunRetention()
			if err != nil {
				slog.Error("retention run failed", "error", err)
				continue
			}
			if report.Total() > 0 {
				slog.Info("retention cleaned up",
					"results", report.ResultsDeleted,
					"executions", report.ExecutionsDeleted,
					"decisions", report.DecisionsTrimmed)
			}
		}
	}
}

// RunRetention deletes execution results and task executions older
// than the retention window and caps the decisions category to its
// newest entries.
func (b *Bank) RunRetention() (RetentionReport, error) {
	var report RetentionReport

	days := b.cfg.RetentionDays
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	res, err := b.db.Exec(`DELETE FROM execution_results WHERE created_at < ?`, cutoff)
	if err != nil {
		return report, fmt.Errorf("prune execution results: %w", err)
	}
	report.ResultsDeleted, _ = res.RowsAffected()

	res, err = b.db.Exec(`DELETE FROM task_executions WHERE created_at < ?`, cutoff)
	if err != nil {
		return report, fmt.Errorf("prune task executions: %w", err)
	}
	report.ExecutionsDeleted, _ = res.RowsAffected()

	keep := b.cfg.KeepDecisions
	if keep <= 0 {
		keep = 1000
	}
	res, err = b.db.Exec(`
		DELETE FROM decisions WHERE id NOT IN (
			SELECT id FROM decisions ORDER BY created_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return report, fmt.Errorf("trim decisions: %w", err)
	}
	report.DecisionsTrimmed, _ = res.RowsAffected()

	return report, nil
}
