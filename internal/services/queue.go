package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seedbed/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNoJob signals an empty queue on dequeue.
var ErrNoJob = errors.New("no queued job")

// JobQueue is the enqueue-side contract. Enqueue returns once the job is
// durably queued; there is no synchronous completion signal.
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) (string, error)
}

// DBJobQueue persists jobs as rows and serves workers by priority. Retry
// on failure is the queue consumer's business, not the core's.
type DBJobQueue struct {
	db     *gorm.DB
	logger *logrus.Logger
}

var _ JobQueue = (*DBJobQueue)(nil)

func NewDBJobQueue(db *gorm.DB, logger *logrus.Logger) *DBJobQueue {
	if logger == nil {
		logger = logrus.New()
	}
	return &DBJobQueue{db: db, logger: logger}
}

// Enqueue durably inserts the job and returns its id.
func (q *DBJobQueue) Enqueue(ctx context.Context, job *models.Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("job required")
	}
	if job.SeedID == "" || job.AutomationID == "" {
		return "", fmt.Errorf("seed id and automation id required")
	}
	if job.Priority < 1 {
		job.Priority = 1
	}
	if job.Priority > 100 {
		job.Priority = 100
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = models.JobStatusQueued
	job.CreatedAt = time.Now().UTC()
	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	q.logger.Debugf("queued job %s (seed %s, automation %s, priority %d)",
		job.ID, job.SeedID, job.AutomationID, job.Priority)
	return job.ID, nil
}

// Dequeue claims the highest-priority queued job, oldest first on ties,
// and marks it running. The claim uses an optimistic status guard so two
// workers never pick up the same row.
func (q *DBJobQueue) Dequeue(ctx context.Context) (*models.Job, error) {
	var job models.Job
	err := q.db.WithContext(ctx).
		Where("status = ?", models.JobStatusQueued).
		Order("priority DESC, created_at").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}

	now := time.Now().UTC()
	res := q.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", job.ID, models.JobStatusQueued).
		Updates(map[string]interface{}{"status": models.JobStatusRunning, "started_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("claim job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race; let the caller poll again.
		return nil, ErrNoJob
	}
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	return &job, nil
}

// Complete records the job's outcome.
func (q *DBJobQueue) Complete(ctx context.Context, jobID string, jobErr error) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      models.JobStatusDone,
		"finished_at": now,
	}
	if jobErr != nil {
		updates["status"] = models.JobStatusFailed
		updates["error"] = jobErr.Error()
	}
	if err := q.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}
