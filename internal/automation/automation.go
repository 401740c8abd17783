// Package automation hosts the pluggable analyzers that read projected
// entity state and decide on new transactions, plus the registry and the
// pressure dispatch pipeline that re-triggers them.
package automation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"seedbed/internal/models"
	"seedbed/internal/projection"
	"seedbed/internal/services"
	"seedbed/pkg/fetcher"

	"github.com/sirupsen/logrus"
)

// DefaultPressureThreshold applies to automations that do not override
// PressureThreshold. Automations that must never react to pressure
// return 100 instead.
const DefaultPressureThreshold = 50.0

// Enqueuer hands a job to the asynchronous queue. Enqueue returns once
// the job is durably queued; execution happens later, elsewhere.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) (string, error)
}

// Fetcher retrieves external page content for tool-augmented automations.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (*fetcher.Page, error)
}

// SproutCreator persists a sprout entity outside the seed's own log.
// Used by automations whose effects are side-channel entities rather
// than timeline transactions.
type SproutCreator interface {
	CreateSprout(ctx context.Context, seedID, userID string, sproutType models.SproutType, message string, dueTime *time.Time) (*models.Sprout, error)
}

// Context carries the injected collaborators an automation may use.
// Every field is optional; automations must degrade to no-ops when a
// collaborator they need is absent.
type Context struct {
	Completions services.CompletionService
	Fetcher     Fetcher
	Queue       Enqueuer
	Sprouts     SproutCreator
	UserID      string
	Metadata    map[string]string
	Logger      *logrus.Logger
}

func (c *Context) log() *logrus.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

// Result is what Process hands back. The automation never appends its
// transactions itself; the caller persists them, which keeps dry runs
// and tests trivial.
type Result struct {
	Transactions []models.Transaction
	Metadata     map[string]string
}

// Automation is the capability set every analyzer implements. Process and
// HandlePressure may block on external services; CalculatePressure must
// not, since it runs synchronously across every change batch for every
// enabled automation.
type Automation interface {
	Name() string
	Description() string
	HandlerFnName() string

	// Durable identity, resolved by the registry at startup.
	ID() string
	Enabled() bool
	SetIdentity(id string, enabled bool)

	ValidateSeed(seed *projection.SeedState, actx *Context) bool
	Process(ctx context.Context, seed *projection.SeedState, actx *Context) (*Result, error)

	CalculatePressure(seed *projection.SeedState, actx *Context, changes []models.CategoryChange) float64
	PressureThreshold() float64
	HandlePressure(ctx context.Context, seed *projection.SeedState, pressure float64, actx *Context) error
	CalculatePriority(pressure float64) int
}

// Base supplies the standard identity storage and default behaviors.
// Concrete automations embed it and implement the rest.
type Base struct {
	mu      sync.RWMutex
	id      string
	enabled bool
}

func (b *Base) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

func (b *Base) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

func (b *Base) SetIdentity(id string, enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = id
	b.enabled = enabled
}

// ValidateSeed accepts everything by default.
func (b *Base) ValidateSeed(seed *projection.SeedState, actx *Context) bool {
	return seed != nil
}

func (b *Base) PressureThreshold() float64 {
	return DefaultPressureThreshold
}

// CalculatePriority clamps round(pressure) into [1, 100].
func (b *Base) CalculatePriority(pressure float64) int {
	p := int(math.Round(pressure))
	if p < 1 {
		return 1
	}
	if p > 100 {
		return 100
	}
	return p
}

// HandlePressure enqueues a re-processing job. An automation without a
// durable id cannot be identified by a worker later, so that is a
// configuration error, not a soft failure.
func (b *Base) HandlePressure(ctx context.Context, seed *projection.SeedState, pressure float64, actx *Context) error {
	id := b.ID()
	if id == "" {
		return fmt.Errorf("automation has no durable id; register it before dispatching pressure")
	}
	if actx == nil || actx.Queue == nil {
		return fmt.Errorf("job queue not configured")
	}
	// The seed's owner, when known, wins over the shared context: the
	// dispatcher runs process-wide and its context carries no user.
	userID := seed.UserID
	if userID == "" {
		userID = actx.UserID
	}
	job := &models.Job{
		SeedID:       seed.SeedID,
		AutomationID: id,
		UserID:       userID,
		Priority:     b.CalculatePriority(pressure),
	}
	if _, err := actx.Queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}
