package automation

import (
	"context"
	"testing"

	"seedbed/internal/models"
	"seedbed/internal/projection"

	"github.com/sirupsen/logrus"
)

// stubAutomation scores a fixed pressure per batch and records crossings.
type stubAutomation struct {
	Base
	name      string
	pressure  float64
	threshold float64

	crossings []float64
}

var _ Automation = (*stubAutomation)(nil)

func (s *stubAutomation) Name() string          { return s.name }
func (s *stubAutomation) Description() string   { return "test stub" }
func (s *stubAutomation) HandlerFnName() string { return "stub" }

func (s *stubAutomation) CalculatePressure(seed *projection.SeedState, actx *Context, changes []models.CategoryChange) float64 {
	return s.pressure
}

func (s *stubAutomation) PressureThreshold() float64 {
	if s.threshold > 0 {
		return s.threshold
	}
	return DefaultPressureThreshold
}

func (s *stubAutomation) Process(ctx context.Context, seed *projection.SeedState, actx *Context) (*Result, error) {
	return &Result{}, nil
}

func (s *stubAutomation) HandlePressure(ctx context.Context, seed *projection.SeedState, pressure float64, actx *Context) error {
	s.crossings = append(s.crossings, pressure)
	return s.Base.HandlePressure(ctx, seed, pressure, actx)
}

// staticSeedSource serves a fixed seed set regardless of the query.
type staticSeedSource struct {
	seeds []*projection.SeedState
}

func (s *staticSeedSource) SeedsByCategories(ctx context.Context, categoryIDs []string) ([]*projection.SeedState, error) {
	return s.seeds, nil
}

func newPressureRig(t *testing.T, stub *stubAutomation, seeds ...*projection.SeedState) (*Dispatcher, *fakeEnqueuer) {
	t.Helper()
	reg := NewRegistry(newTestDB(t), logrus.New())
	if err := reg.Register(context.Background(), stub); err != nil {
		t.Fatalf("register: %v", err)
	}
	queue := &fakeEnqueuer{}
	actx := &Context{Queue: queue, UserID: "user-1"}
	return NewDispatcher(reg, &staticSeedSource{seeds: seeds}, actx, logrus.New()), queue
}

func renameChange(categoryID string) []models.CategoryChange {
	return []models.CategoryChange{{Type: models.CategoryRename, CategoryID: categoryID}}
}

func TestDispatcher_AccumulatesUntilThreshold(t *testing.T) {
	stub := &stubAutomation{name: "stub-10", pressure: 10}
	d, queue := newPressureRig(t, stub, seedState("seed-1", "x", "cat-1"))
	ctx := context.Background()

	// Five batches of 10 reach the default threshold of 50 on the fifth.
	for i := 0; i < 4; i++ {
		if err := d.Dispatch(ctx, renameChange("cat-1")); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if len(stub.crossings) != 0 {
			t.Fatalf("crossed early after batch %d", i+1)
		}
	}
	if got := d.Accumulated("seed-1", "stub-10"); got != 40 {
		t.Fatalf("expected 40 accumulated, got %v", got)
	}

	if err := d.Dispatch(ctx, renameChange("cat-1")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(stub.crossings) != 1 || stub.crossings[0] != 50 {
		t.Fatalf("expected one crossing at 50, got %v", stub.crossings)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].Priority != 50 {
		t.Fatalf("expected one job with priority 50, got %+v", queue.jobs)
	}
	if got := d.Accumulated("seed-1", "stub-10"); got != 0 {
		t.Fatalf("expected accumulator reset to 0, got %v", got)
	}
}

func TestDispatcher_JobCarriesSeedOwner(t *testing.T) {
	stub := &stubAutomation{name: "stub-owner", pressure: 60}
	reg := NewRegistry(newTestDB(t), logrus.New())
	if err := reg.Register(context.Background(), stub); err != nil {
		t.Fatalf("register: %v", err)
	}
	queue := &fakeEnqueuer{}
	seed := seedState("seed-1", "x", "cat-1")
	seed.UserID = "owner-3"
	// The shared context carries no user, matching the server wiring.
	d := NewDispatcher(reg, &staticSeedSource{seeds: []*projection.SeedState{seed}},
		&Context{Queue: queue}, logrus.New())

	if err := d.Dispatch(context.Background(), renameChange("cat-1")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(queue.jobs))
	}
	if queue.jobs[0].UserID != "owner-3" {
		t.Fatalf("expected job owned by the seed's owner, got %q", queue.jobs[0].UserID)
	}
}

func TestDispatcher_ExactThresholdFires(t *testing.T) {
	stub := &stubAutomation{name: "stub-exact", pressure: 50}
	d, _ := newPressureRig(t, stub, seedState("seed-1", "x", "cat-1"))

	if err := d.Dispatch(context.Background(), renameChange("cat-1")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(stub.crossings) != 1 {
		t.Fatalf("expected crossing at exactly the threshold, got %v", stub.crossings)
	}
}

func TestDispatcher_JustBelowThresholdDoesNotFire(t *testing.T) {
	stub := &stubAutomation{name: "stub-below", pressure: 49}
	d, _ := newPressureRig(t, stub, seedState("seed-1", "x", "cat-1"))

	if err := d.Dispatch(context.Background(), renameChange("cat-1")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(stub.crossings) != 0 {
		t.Fatalf("expected no crossing at threshold-1, got %v", stub.crossings)
	}
}

func TestDispatcher_BatchIsSingleContribution(t *testing.T) {
	// Follow-up weights: remove=25, rename=10. One batch with both is a
	// single 35 contribution and a single threshold check.
	a := NewFollowUpAutomation()
	reg := NewRegistry(newTestDB(t), logrus.New())
	if err := reg.Register(context.Background(), a); err != nil {
		t.Fatalf("register: %v", err)
	}
	queue := &fakeEnqueuer{}
	d := NewDispatcher(reg, &staticSeedSource{seeds: []*projection.SeedState{
		seedState("seed-1", "note", "cat-1"),
	}}, &Context{Queue: queue}, logrus.New())

	changes := []models.CategoryChange{
		{Type: models.CategoryRemove, CategoryID: "cat-1"},
		{Type: models.CategoryRename, CategoryID: "cat-1"},
	}
	if err := d.Dispatch(context.Background(), changes); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := d.Accumulated("seed-1", a.Name()); got != 35 {
		t.Fatalf("expected a single 35 contribution, got %v", got)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("expected no crossing at 35, got %d jobs", len(queue.jobs))
	}
}

func TestDispatcher_DecisionValueClampedTo100(t *testing.T) {
	stub := &stubAutomation{name: "stub-big", pressure: 80, threshold: 90}
	d, queue := newPressureRig(t, stub, seedState("seed-1", "x", "cat-1"))
	ctx := context.Background()

	if err := d.Dispatch(ctx, renameChange("cat-1")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := d.Dispatch(ctx, renameChange("cat-1")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	// 80 + 80 clamps to 100 before the threshold check.
	if len(stub.crossings) != 1 || stub.crossings[0] != 100 {
		t.Fatalf("expected one crossing at 100, got %v", stub.crossings)
	}
	if queue.jobs[0].Priority != 100 {
		t.Fatalf("expected priority 100, got %d", queue.jobs[0].Priority)
	}
}

func TestDispatcher_NonOverlappingSeedSkipped(t *testing.T) {
	stub := &stubAutomation{name: "stub-skip", pressure: 60}
	d, queue := newPressureRig(t, stub, seedState("seed-1", "x", "cat-other"))

	if err := d.Dispatch(context.Background(), renameChange("cat-1")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatal("seed without changed categories must not be scored")
	}
	if got := d.Accumulated("seed-1", "stub-skip"); got != 0 {
		t.Fatalf("expected no accumulation, got %v", got)
	}
}

func TestDispatcher_PairsAreIndependent(t *testing.T) {
	stub := &stubAutomation{name: "stub-pair", pressure: 30}
	d, _ := newPressureRig(t, stub,
		seedState("seed-1", "x", "cat-1"),
		seedState("seed-2", "y", "cat-1"),
	)

	if err := d.Dispatch(context.Background(), renameChange("cat-1")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if d.Accumulated("seed-1", "stub-pair") != 30 || d.Accumulated("seed-2", "stub-pair") != 30 {
		t.Fatal("each (seed, automation) pair accumulates independently")
	}
}

func TestDispatcher_HandlePressureErrorDoesNotAbortBatch(t *testing.T) {
	// No durable queue in the context makes HandlePressure fail; the
	// second seed must still be scored.
	stub := &stubAutomation{name: "stub-err", pressure: 60}
	reg := NewRegistry(newTestDB(t), logrus.New())
	if err := reg.Register(context.Background(), stub); err != nil {
		t.Fatalf("register: %v", err)
	}
	d := NewDispatcher(reg, &staticSeedSource{seeds: []*projection.SeedState{
		seedState("seed-1", "x", "cat-1"),
		seedState("seed-2", "y", "cat-1"),
	}}, &Context{}, logrus.New())

	if err := d.Dispatch(context.Background(), renameChange("cat-1")); err != nil {
		t.Fatalf("dispatch must not propagate pair failures: %v", err)
	}
	if len(stub.crossings) != 2 {
		t.Fatalf("expected both seeds scored despite failures, got %d", len(stub.crossings))
	}
}

func TestDispatcher_EmptyBatchIsNoOp(t *testing.T) {
	stub := &stubAutomation{name: "stub-empty", pressure: 60}
	d, queue := newPressureRig(t, stub, seedState("seed-1", "x", "cat-1"))

	if err := d.Dispatch(context.Background(), nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatal("empty batch must not dispatch")
	}
}
