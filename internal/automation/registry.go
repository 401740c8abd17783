package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"seedbed/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Registry is the process-wide catalog of compiled-in automations. It is
// constructed once at startup and passed by reference; there is no global
// accessor. Reads are concurrent-safe; mutation is expected to be rare
// (startup and tests) and takes the write lock.
type Registry struct {
	db     *gorm.DB
	logger *logrus.Logger

	mu     sync.RWMutex
	byID   map[string]Automation
	byName map[string]Automation
}

func NewRegistry(db *gorm.DB, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		db:     db,
		logger: logger,
		byID:   map[string]Automation{},
		byName: map[string]Automation{},
	}
}

// Register resolves the automation's durable identity by its stable name,
// creating the row on first sight, then indexes the instance. Registering
// the same name across restarts resolves the same id every time.
func (r *Registry) Register(ctx context.Context, a Automation) error {
	if a == nil {
		return fmt.Errorf("automation required")
	}
	if a.Name() == "" {
		return fmt.Errorf("automation name required")
	}

	var row models.Automation
	err := r.db.WithContext(ctx).Where("name = ?", a.Name()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.Automation{
			ID:            uuid.NewString(),
			Name:          a.Name(),
			Description:   a.Description(),
			HandlerFnName: a.HandlerFnName(),
			Enabled:       true,
			CreatedAt:     time.Now().UTC(),
		}
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("create automation record %s: %w", a.Name(), err)
		}
		r.logger.Infof("registered new automation %s (%s)", row.Name, row.ID)
	} else if err != nil {
		return fmt.Errorf("lookup automation %s: %w", a.Name(), err)
	}

	a.SetIdentity(row.ID, row.Enabled)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[row.ID] = a
	r.byName[row.Name] = a
	return nil
}

// LoadFromDatabase is the bulk startup variant: every compiled-in
// automation gets a durable identity before any job referencing it can
// be dispatched.
func (r *Registry) LoadFromDatabase(ctx context.Context, instances []Automation) error {
	for _, a := range instances {
		if err := r.Register(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) GetByID(id string) (Automation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

func (r *Registry) GetByName(name string) (Automation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

func (r *Registry) GetAll() []Automation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Automation, 0, len(r.byName))
	for _, a := range r.byName {
		out = append(out, a)
	}
	return out
}

// GetEnabled filters on the in-memory enabled flag only; it does not
// re-check the store.
func (r *Registry) GetEnabled() []Automation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Automation, 0, len(r.byName))
	for _, a := range r.byName {
		if a.Enabled() {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byName[name]
	if !ok {
		return
	}
	delete(r.byName, name)
	delete(r.byID, a.ID())
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = map[string]Automation{}
	r.byName = map[string]Automation{}
}
