package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/shaiso/Bulksub/internal/domain"
	"github.com/shaiso/Bulksub/internal/mq"
	"github.com/shaiso/Bulksub/internal/repo"
	"github.com/shaiso/Bulksub/internal/worker"
)

// --- Fakes ---

type staticCreds struct{}

func (staticCreds) Token(context.Context) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "tok"}, nil
}

func (staticCreds) Refresh(context.Context, *oauth2.Token) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "tok2"}, nil
}

type okClient struct{}

func (okClient) Subscribe(context.Context, string, *oauth2.Token) error { return nil }

type fakeLease struct {
	mu       sync.Mutex
	released bool
	lost     chan struct{}
}

func (l *fakeLease) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func (l *fakeLease) Lost() <-chan struct{} { return l.lost }

func (l *fakeLease) isReleased() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

type fakeLocker struct {
	mu     sync.Mutex
	held   map[uuid.UUID]bool
	leases map[uuid.UUID]*fakeLease
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[uuid.UUID]bool), leases: make(map[uuid.UUID]*fakeLease)}
}

func (l *fakeLocker) Acquire(_ context.Context, runID uuid.UUID) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[runID] {
		return nil, ErrRunLeased
	}
	fl := &fakeLease{lost: make(chan struct{})}
	l.leases[runID] = fl
	return fl, nil
}

func (l *fakeLocker) lease(runID uuid.UUID) *fakeLease {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leases[runID]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSupervisor(t *testing.T, store *repo.MemoryStore, locker Locker) *Supervisor {
	t.Helper()
	s := New(Config{
		Store:  store,
		Locker: locker,
		Worker: worker.Config{
			Credentials: staticCreds{},
			Client:      okClient{},
		},
		Logger: discardLogger(),
	})
	t.Cleanup(s.Stop)
	return s
}

func createRun(t *testing.T, store *repo.MemoryStore, ids ...string) *domain.Run {
	t.Helper()
	entries := make([]domain.Entry, len(ids))
	for i, id := range ids {
		entries[i] = domain.Entry{ChannelID: id}
	}
	run := domain.NewRun()
	if err := store.CreateRun(context.Background(), run, entries); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

const (
	chA = "UCaaaaaaaaaaaaaaaaaaaaaa"
	chB = "UCbbbbbbbbbbbbbbbbbbbbbb"
)

// --- Supervisor Tests ---

func TestStart_UnknownRun(t *testing.T) {
	s := newSupervisor(t, repo.NewMemoryStore(), nil)

	err := s.Start(context.Background(), uuid.New(), 0)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if s.ActiveCount() != 0 {
		t.Error("no worker should be registered")
	}
}

func TestStart_RegistersWorker(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	s := newSupervisor(t, store, nil)
	run := createRun(t, store, chA, chB)

	if err := s.Start(ctx, run.ID, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", s.ActiveCount())
	}

	got, _ := store.GetRun(ctx, run.ID)
	if got.Status != domain.RunStatusRunning || got.StartedAt == nil {
		t.Errorf("run = %+v, want RUNNING with started_at", got)
	}

	// Повторный Start использует тот же воркер.
	if err := s.Start(ctx, run.ID, time.Hour); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if s.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", s.ActiveCount())
	}
}

func TestStart_CompletedRunRemovesWorker(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	s := New(Config{
		Store: store,
		Worker: worker.Config{
			Credentials: staticCreds{},
			Client:      okClient{},
			MinDelay:    time.Millisecond,
		},
		Logger: discardLogger(),
	})
	defer s.Stop()

	run := createRun(t, store, chA)
	if err := s.Start(ctx, run.ID, time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return s.ActiveCount() == 0 })

	got, _ := store.GetRun(ctx, run.ID)
	if got.Status != domain.RunStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}

	if err := s.Start(ctx, run.ID, 0); !errors.Is(err, worker.ErrRunCompleted) {
		t.Errorf("expected ErrRunCompleted, got %v", err)
	}
}

func TestTogglePause(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	s := newSupervisor(t, store, nil)
	run := createRun(t, store, chA, chB)

	paused, err := s.TogglePause(run.ID)
	if err != nil || !paused {
		t.Fatalf("TogglePause without worker = (%v, %v), want (true, nil)", paused, err)
	}

	if err := s.Start(ctx, run.ID, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}

	paused, err = s.TogglePause(run.ID)
	if err != nil || !paused {
		t.Fatalf("TogglePause = (%v, %v), want (true, nil)", paused, err)
	}
	if !s.IsPaused(run.ID) {
		t.Error("IsPaused should be true")
	}
	if state, ok := s.WorkerState(run.ID); !ok || state != worker.StatePaused {
		t.Errorf("WorkerState = (%s, %v), want (PAUSED, true)", state, ok)
	}

	paused, err = s.TogglePause(run.ID)
	if err != nil || paused {
		t.Fatalf("TogglePause = (%v, %v), want (false, nil)", paused, err)
	}
}

func TestCommandsWithoutWorker(t *testing.T) {
	s := newSupervisor(t, repo.NewMemoryStore(), nil)
	id := uuid.New()

	if err := s.Pause(id); !errors.Is(err, ErrRunNotActive) {
		t.Errorf("Pause: expected ErrRunNotActive, got %v", err)
	}
	if err := s.Resume(id); !errors.Is(err, ErrRunNotActive) {
		t.Errorf("Resume: expected ErrRunNotActive, got %v", err)
	}
	if _, err := s.AutoResumeCheck(context.Background(), id); !errors.Is(err, ErrRunNotActive) {
		t.Errorf("AutoResumeCheck: expected ErrRunNotActive, got %v", err)
	}
	if s.IsPaused(id) {
		t.Error("IsPaused without worker should be false")
	}
}

func quotaFail(t *testing.T, store *repo.MemoryStore, runID uuid.UUID, at time.Time) {
	t.Helper()
	ctx := context.Background()
	item, err := store.NextPendingItem(ctx, runID)
	if err != nil {
		t.Fatalf("NextPendingItem: %v", err)
	}
	if err := store.RecordFailure(ctx, item, domain.ErrorTagQuota, "quotaExceeded", at); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
}

func TestRetryQuotaErrors_WithoutWorker(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	s := newSupervisor(t, store, nil)
	run := createRun(t, store, chA, chB)

	quotaFail(t, store, run.ID, time.Now().Add(-5*time.Hour))
	quotaFail(t, store, run.ID, time.Now().Add(-time.Hour))

	n, err := s.RetryQuotaErrors(ctx, run.ID)
	if err != nil {
		t.Fatalf("RetryQuotaErrors: %v", err)
	}
	if n != 1 {
		t.Errorf("reset = %d, want 1", n)
	}
	if s.ActiveCount() != 0 {
		t.Error("retry must not create a worker")
	}

	if _, err := s.RetryQuotaErrors(ctx, uuid.New()); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown run, got %v", err)
	}
}

func TestRetryQuotaErrorsAll(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	s := newSupervisor(t, store, nil)

	old := time.Now().Add(-5 * time.Hour)
	var runs []*domain.Run
	for i := 0; i < 2; i++ {
		run := createRun(t, store, chA)
		if err := store.MarkRunStarted(ctx, run.ID, old); err != nil {
			t.Fatalf("MarkRunStarted: %v", err)
		}
		quotaFail(t, store, run.ID, old)
		runs = append(runs, run)
	}

	// PENDING run не затрагивается.
	pending := createRun(t, store, chB)
	quotaFail(t, store, pending.ID, old)

	n, err := s.RetryQuotaErrorsAll(ctx, time.Time{})
	if err != nil {
		t.Fatalf("RetryQuotaErrorsAll: %v", err)
	}
	if n != 2 {
		t.Errorf("reset = %d, want 2", n)
	}

	c, _ := store.CountByRun(ctx, pending.ID)
	if c.Quota != 1 {
		t.Errorf("pending run counts = %+v, want untouched quota error", c)
	}
}

func TestRetryQuotaErrorsAll_ResetMoment(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	s := newSupervisor(t, store, nil)

	now := time.Now()
	run := createRun(t, store, chA, chB)
	if err := store.MarkRunStarted(ctx, run.ID, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("MarkRunStarted: %v", err)
	}
	// Обе ошибки моложе cool-down; первая — до сброса квоты.
	quotaFail(t, store, run.ID, now.Add(-time.Hour))
	quotaFail(t, store, run.ID, now.Add(-10*time.Minute))

	n, err := s.RetryQuotaErrorsAll(ctx, now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("RetryQuotaErrorsAll: %v", err)
	}
	if n != 1 {
		t.Errorf("reset = %d, want 1 (error before the reset moment)", n)
	}

	c, _ := store.CountByRun(ctx, run.ID)
	if c.Pending != 1 || c.Quota != 1 {
		t.Errorf("counts = %+v, want 1 pending and 1 quota", c)
	}
}

// --- Lease Tests ---

func TestStart_LeasedElsewhere(t *testing.T) {
	store := repo.NewMemoryStore()
	locker := newFakeLocker()
	s := newSupervisor(t, store, locker)
	run := createRun(t, store, chA)

	locker.held[run.ID] = true

	if err := s.Start(context.Background(), run.ID, 0); !errors.Is(err, ErrRunLeased) {
		t.Fatalf("expected ErrRunLeased, got %v", err)
	}
	if s.ActiveCount() != 0 {
		t.Error("no worker should be registered")
	}
}

func TestLeaseLostStopsWorker(t *testing.T) {
	store := repo.NewMemoryStore()
	locker := newFakeLocker()
	s := newSupervisor(t, store, locker)
	run := createRun(t, store, chA, chB)

	if err := s.Start(context.Background(), run.ID, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}

	l := locker.lease(run.ID)
	close(l.lost)

	waitFor(t, func() bool { return s.ActiveCount() == 0 })
	waitFor(t, l.isReleased)
}

func TestStop_ReleasesLeases(t *testing.T) {
	store := repo.NewMemoryStore()
	locker := newFakeLocker()
	s := newSupervisor(t, store, locker)
	run := createRun(t, store, chA, chB)

	if err := s.Start(context.Background(), run.ID, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Stop()

	if s.ActiveCount() != 0 {
		t.Error("registry should be empty after Stop")
	}
	if !locker.lease(run.ID).isReleased() {
		t.Error("lease should be released")
	}
	if err := s.Start(context.Background(), run.ID, 0); !errors.Is(err, ErrSupervisorStopped) {
		t.Errorf("expected ErrSupervisorStopped, got %v", err)
	}

	got, _ := store.GetRun(context.Background(), run.ID)
	if got.Status != domain.RunStatusRunning {
		t.Errorf("status = %s, Stop must not change run status", got.Status)
	}
}

// --- Control Tests ---

func controlDelivery(payload any) *mq.Delivery {
	return &mq.Delivery{Message: mq.Message{
		ID:      uuid.NewString(),
		Type:    mq.MessageTypeRunControl,
		Payload: payload,
	}}
}

func TestHandleControl(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	s := newSupervisor(t, store, nil)
	run := createRun(t, store, chA, chB)

	start := controlDelivery(mq.ControlPayload{RunID: run.ID, Action: mq.ActionStart, DelayMs: 3_600_000})
	if err := s.handleControl(ctx, start); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", s.ActiveCount())
	}

	pause := controlDelivery(mq.ControlPayload{RunID: run.ID, Action: mq.ActionPause})
	if err := s.handleControl(ctx, pause); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !s.IsPaused(run.ID) {
		t.Error("run should be paused")
	}
}

func TestHandleControl_Rejections(t *testing.T) {
	s := newSupervisor(t, repo.NewMemoryStore(), nil)

	tests := []struct {
		name     string
		delivery *mq.Delivery
	}{
		{"invalid payload", controlDelivery(map[string]any{"action": "start"})},
		{"unknown run", controlDelivery(mq.ControlPayload{RunID: uuid.New(), Action: mq.ActionStart})},
		{"no worker", controlDelivery(mq.ControlPayload{RunID: uuid.New(), Action: mq.ActionResume})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.handleControl(context.Background(), tt.delivery)
			if !errors.Is(err, mq.ErrPermanent) {
				t.Fatalf("expected ErrPermanent, got %v", err)
			}
		})
	}
}
