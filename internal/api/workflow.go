package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/safar/warehouse-ops/internal/workflow"
	"go.uber.org/zap"
)

// workflowRuns tracks the single background run started over HTTP.
type workflowRuns struct {
	ctx context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status runStatus
}

type runStatus struct {
	Running    bool              `json:"running"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Progress   workflow.Progress `json:"progress"`
	Summary    *workflow.Summary `json:"summary,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func newWorkflowRuns(ctx context.Context) *workflowRuns {
	return &workflowRuns{ctx: ctx}
}

func (w *workflowRuns) snapshot() runStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *workflowRuns) start(runner *workflow.Runner, logger *zap.Logger) (runStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil || runner.Running() {
		return w.status, workflow.ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(w.ctx)
	now := time.Now()
	w.cancel = cancel
	w.done = make(chan struct{})
	w.status = runStatus{Running: true, StartedAt: &now}

	go func(done chan struct{}) {
		defer close(done)
		defer cancel()

		sum, err := runner.Run(ctx, func(p workflow.Progress) {
			w.mu.Lock()
			w.status.Progress = p
			w.mu.Unlock()
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("workflow run failed", zap.Error(err))
		}

		finished := time.Now()
		w.mu.Lock()
		w.status.Running = false
		w.status.FinishedAt = &finished
		w.status.Summary = &sum
		if err != nil {
			w.status.Error = err.Error()
		}
		w.cancel = nil
		w.mu.Unlock()
	}(w.done)

	return w.status, nil
}

// stop cancels the active run, if any, and waits for it to return.
func (w *workflowRuns) stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.respondJSON(w, http.StatusOK, s.runs.snapshot())

	case http.MethodPost:
		status, err := s.runs.start(s.app.Workflow, s.logger)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusAccepted, status)

	case http.MethodDelete:
		s.runs.stop()
		s.respondJSON(w, http.StatusOK, s.runs.snapshot())

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
