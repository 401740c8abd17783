package automation

import (
	"context"
	"fmt"
	"sync"

	"seedbed/internal/models"
	"seedbed/internal/projection"

	"github.com/sirupsen/logrus"
)

// SeedSource supplies the candidate seeds affected by a change batch.
type SeedSource interface {
	SeedsByCategories(ctx context.Context, categoryIDs []string) ([]*projection.SeedState, error)
}

type pairKey struct {
	seedID         string
	automationName string
}

// Dispatcher accumulates pressure per (seed, automation) pair and, on a
// threshold crossing, converts it into a queued job via HandlePressure.
// Accumulators are transient: restarts start from zero.
type Dispatcher struct {
	registry *Registry
	seeds    SeedSource
	actx     *Context
	logger   *logrus.Logger

	mu          sync.Mutex
	accumulated map[pairKey]float64
}

func NewDispatcher(registry *Registry, seeds SeedSource, actx *Context, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		registry:    registry,
		seeds:       seeds,
		actx:        actx,
		logger:      logger,
		accumulated: map[pairKey]float64{},
	}
}

// Dispatch scores one batch of category changes. Per pair the batch is a
// single pressure contribution: pressures from all changes are summed by
// CalculatePressure, then the threshold is checked once. Crossing resets
// the accumulator to zero. A failing pair never aborts the rest of the
// batch.
func (d *Dispatcher) Dispatch(ctx context.Context, changes []models.CategoryChange) error {
	if len(changes) == 0 {
		return nil
	}

	changed := map[string]struct{}{}
	ids := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.CategoryID == "" {
			continue
		}
		if _, ok := changed[ch.CategoryID]; !ok {
			changed[ch.CategoryID] = struct{}{}
			ids = append(ids, ch.CategoryID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	seeds, err := d.seeds.SeedsByCategories(ctx, ids)
	if err != nil {
		return fmt.Errorf("load affected seeds: %w", err)
	}

	enabled := d.registry.GetEnabled()
	for _, seed := range seeds {
		if seed == nil || !overlaps(seed, changed) {
			// Automations would score 0 anyway; skip the whole pair.
			continue
		}
		for _, a := range enabled {
			pressure := a.CalculatePressure(seed, d.actx, changes)
			if pressure <= 0 {
				continue
			}
			accumulated, crossed := d.accumulate(seed.SeedID, a.Name(), pressure, a.PressureThreshold())
			if !crossed {
				continue
			}
			if err := a.HandlePressure(ctx, seed, accumulated, d.actx); err != nil {
				d.logger.Warnf("pressure: automation %s seed %s: %v", a.Name(), seed.SeedID, err)
			}
		}
	}
	return nil
}

// accumulate adds pressure to the pair's accumulator, clamping the
// decision value to 100. On crossing the threshold the accumulator is
// reset to zero and the crossing value is returned.
func (d *Dispatcher) accumulate(seedID, automationName string, pressure, threshold float64) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := pairKey{seedID: seedID, automationName: automationName}
	total := d.accumulated[key] + pressure
	if total > 100 {
		total = 100
	}
	if total >= threshold {
		d.accumulated[key] = 0
		return total, true
	}
	d.accumulated[key] = total
	return total, false
}

// Accumulated reports the pair's current pressure. Mostly for tests and
// diagnostics.
func (d *Dispatcher) Accumulated(seedID, automationName string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accumulated[pairKey{seedID: seedID, automationName: automationName}]
}

func overlaps(seed *projection.SeedState, changed map[string]struct{}) bool {
	for _, c := range seed.Categories {
		if _, ok := changed[c]; ok {
			return true
		}
	}
	return false
}
