// Package service records agent runs around the approval loop.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/internal/hitl"
	"github.com/dyike/CortexDesk/internal/metrics"
	"github.com/dyike/CortexDesk/models"
)

// RunStore persists runs and their approval decisions.
type RunStore interface {
	CreateRun(ctx context.Context, id, threadID, task string) error
	FinishRun(ctx context.Context, id, status string, rounds int, transcript, errMsg string) error
	RecordApproval(ctx context.Context, row models.ApprovalRow) error
}

type threaded interface {
	ThreadID() string
}

type RunRequest struct {
	Task      string
	Executor  hitl.Executor
	Approver  hitl.Approver
	Notifier  hitl.Notifier
	Sink      io.Writer
	MaxRounds int
	Quiet     bool
}

type RunOutcome struct {
	RunID  string
	Result *hitl.Result
}

type Runs struct {
	store   RunStore
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewRuns(store RunStore, m *metrics.Metrics, log zerolog.Logger) *Runs {
	return &Runs{store: store, metrics: m, log: log.With().Str("component", "runs").Logger()}
}

// Run drives req.Executor to completion and records the run. The outcome
// is returned even when the run fails; the error is the run's own error.
func (s *Runs) Run(ctx context.Context, req RunRequest) (*RunOutcome, error) {
	if req.Executor == nil {
		return nil, errors.New("executor is required")
	}
	runID := uuid.NewString()
	threadID := ""
	if t, ok := req.Executor.(threaded); ok {
		threadID = t.ThreadID()
	}
	if err := s.store.CreateRun(ctx, runID, threadID, req.Task); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	log := s.log.With().Str("run_id", runID).Logger()

	opts := []hitl.Option{
		hitl.WithMaxRounds(req.MaxRounds),
		hitl.WithLogger(log),
		hitl.WithQuiet(req.Quiet),
		hitl.WithNotifier(&countingNotifier{next: req.Notifier, metrics: s.metrics}),
	}
	if req.Sink != nil {
		opts = append(opts, hitl.WithSink(req.Sink))
	}
	if req.Approver != nil {
		opts = append(opts, hitl.WithApprover(req.Approver))
	}

	res, runErr := hitl.NewRunner(req.Executor, opts...).Run(ctx, req.Task)

	// the run context may be cancelled already; bookkeeping still has to land
	bg := context.WithoutCancel(ctx)
	for _, rec := range res.Approvals {
		row := models.ApprovalRow{
			RunID:       runID,
			Round:       rec.Round,
			InterruptID: rec.InterruptID,
			Action:      rec.Action,
			Decision:    string(rec.Decision.Type),
			Message:     rec.Decision.Message,
			Mode:        string(rec.Mode),
		}
		if err := s.store.RecordApproval(bg, row); err != nil {
			log.Warn().Err(err).Str("interrupt_id", rec.InterruptID).Msg("record approval failed")
		}
		if s.metrics != nil {
			s.metrics.ObserveApproval(row.Decision, row.Mode)
		}
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := s.store.FinishRun(bg, runID, string(res.Status), res.Rounds, res.Transcript, errMsg); err != nil {
		log.Warn().Err(err).Msg("record run result failed")
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(string(res.Status), res.Rounds)
	}

	log.Info().Str("status", string(res.Status)).Int("rounds", res.Rounds).Int("approvals", len(res.Approvals)).Msg("run finished")
	return &RunOutcome{RunID: runID, Result: res}, runErr
}

type countingNotifier struct {
	next    hitl.Notifier
	metrics *metrics.Metrics
}

func (n *countingNotifier) ToolCalled(name string) {
	if n.metrics != nil {
		n.metrics.ObserveToolCall(name)
	}
	if n.next != nil {
		n.next.ToolCalled(name)
	}
}

func (n *countingNotifier) ActionResolved(rec hitl.ApprovalRecord) {
	if n.next != nil {
		n.next.ActionResolved(rec)
	}
}
