package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seedbed/internal/models"
	"seedbed/internal/services"

	"github.com/sirupsen/logrus"
)

// Worker pulls jobs off the queue and runs the referenced automation
// against the seed's freshly projected state. Duplicate deliveries are
// tolerated: automations re-derive their decisions from current state on
// every run.
type Worker struct {
	queue          *services.DBJobQueue
	txs            *services.TransactionService
	registry       *Registry
	actx           *Context
	pollPeriod     time.Duration
	processTimeout time.Duration
	logger         *logrus.Logger
}

func NewWorker(queue *services.DBJobQueue, txs *services.TransactionService, registry *Registry, actx *Context, pollPeriod, processTimeout time.Duration, logger *logrus.Logger) *Worker {
	if logger == nil {
		logger = logrus.New()
	}
	if pollPeriod <= 0 {
		pollPeriod = 2 * time.Second
	}
	if processTimeout <= 0 {
		processTimeout = 60 * time.Second
	}
	return &Worker{
		queue:          queue,
		txs:            txs,
		registry:       registry,
		actx:           actx,
		pollPeriod:     pollPeriod,
		processTimeout: processTimeout,
		logger:         logger,
	}
}

// Run polls until the context is cancelled. Each claimed job is processed
// to completion; job failures are recorded on the row and never stop the
// loop.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollPeriod)
	defer ticker.Stop()

	w.logger.Infof("automation worker started (poll %s)", w.pollPeriod)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("automation worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes queued jobs until the queue is empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if errors.Is(err, services.ErrNoJob) {
			return
		}
		if err != nil {
			w.logger.Warnf("worker: dequeue: %v", err)
			return
		}
		runErr := w.runJob(ctx, job)
		if err := w.queue.Complete(ctx, job.ID, runErr); err != nil {
			w.logger.Warnf("worker: complete job %s: %v", job.ID, err)
		}
		if runErr != nil {
			w.logger.Warnf("worker: job %s failed: %v", job.ID, runErr)
		}
	}
}

// RunJob executes a single job synchronously. Exposed for manual
// invocation paths and tests.
func (w *Worker) RunJob(ctx context.Context, job *models.Job) error {
	runErr := w.runJob(ctx, job)
	if err := w.queue.Complete(ctx, job.ID, runErr); err != nil {
		w.logger.Warnf("worker: complete job %s: %v", job.ID, err)
	}
	return runErr
}

func (w *Worker) runJob(ctx context.Context, job *models.Job) error {
	a, ok := w.registry.GetByID(job.AutomationID)
	if !ok {
		return fmt.Errorf("unknown automation %s", job.AutomationID)
	}
	if !a.Enabled() {
		w.logger.Debugf("worker: automation %s disabled, dropping job %s", a.Name(), job.ID)
		return nil
	}

	seed, err := w.txs.ProjectSeed(ctx, job.SeedID)
	if err != nil {
		return fmt.Errorf("project seed %s: %w", job.SeedID, err)
	}

	actx := w.jobContext(job)
	if !a.ValidateSeed(seed, actx) {
		w.logger.Debugf("worker: automation %s rejected seed %s", a.Name(), job.SeedID)
		return nil
	}

	procCtx, cancel := context.WithTimeout(ctx, w.processTimeout)
	defer cancel()
	result, err := a.Process(procCtx, seed, actx)
	if err != nil {
		return fmt.Errorf("automation %s process: %w", a.Name(), err)
	}
	if result == nil || len(result.Transactions) == 0 {
		return nil
	}

	// A persistence error fails the job; redelivery is the queue's call.
	automationID := a.ID()
	for i := range result.Transactions {
		tx := result.Transactions[i]
		if tx.AutomationID == nil {
			tx.AutomationID = &automationID
		}
		if err := w.txs.Append(ctx, &tx); err != nil {
			return fmt.Errorf("append automation transaction: %w", err)
		}
	}
	w.logger.Infof("worker: automation %s appended %d transaction(s) for seed %s",
		a.Name(), len(result.Transactions), job.SeedID)
	return nil
}

// jobContext narrows the shared context to the job's user.
func (w *Worker) jobContext(job *models.Job) *Context {
	if w.actx == nil {
		return &Context{UserID: job.UserID, Logger: w.logger}
	}
	actx := *w.actx
	actx.UserID = job.UserID
	return &actx
}
