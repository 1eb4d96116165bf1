package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Bulksub/internal/domain"
	"github.com/shaiso/Bulksub/internal/mq"
	"github.com/shaiso/Bulksub/internal/repo"
	"github.com/shaiso/Bulksub/internal/telemetry"
	"github.com/shaiso/Bulksub/internal/worker"
)

// Default configuration values.
const (
	defaultCoolDown       = 4 * time.Hour
	defaultReleaseTimeout = 5 * time.Second
	sweepPageSize         = 100
)

// Store — операции хранилища, которые нужны supervisor'у.
type Store interface {
	worker.Store
	ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
}

// Supervisor — реестр воркеров runs.
//
// Один воркер на run. Воркер создаётся командой Start и удаляется,
// когда run переходит в COMPLETED или supervisor останавливается.
type Supervisor struct {
	store     Store
	workerCfg worker.Config
	locker    Locker
	conn      *mq.Connection
	coolDown  time.Duration
	now       func() time.Time

	// startMu сериализует создание воркеров (вместе со взятием аренды).
	startMu sync.Mutex

	// workers — живые воркеры (runID → entry).
	workers map[uuid.UUID]*entry
	mu      sync.RWMutex
	stopped bool

	consumer *mq.Consumer

	logger *slog.Logger
}

// entry — воркер и его аренда.
type entry struct {
	w     *worker.Worker
	lease Lease
	quit  chan struct{}
}

// Config — конфигурация Supervisor.
type Config struct {
	Store Store

	// Worker — шаблон конфигурации воркеров. Store, OnDone и Logger
	// выставляются supervisor'ом.
	Worker worker.Config

	// Locker — аренда runs (опционально).
	Locker Locker

	// Control — соединение для очереди команд runs.control (опционально).
	Control *mq.Connection

	// Now — источник времени (для тестов). Default: time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт Supervisor.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	coolDown := cfg.Worker.CoolDown
	if coolDown <= 0 {
		coolDown = defaultCoolDown
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Worker.Now == nil {
		cfg.Worker.Now = now
	}

	return &Supervisor{
		store:     cfg.Store,
		workerCfg: cfg.Worker,
		locker:    cfg.Locker,
		conn:      cfg.Control,
		coolDown:  coolDown,
		now:       now,
		workers:   make(map[uuid.UUID]*entry),
		logger:    logger,
	}
}

// Start запускает (или перезапускает) обработку run.
// delay <= 0 означает delay по умолчанию; меньше минимального поднимается до минимума.
func (s *Supervisor) Start(ctx context.Context, runID uuid.UUID, delay time.Duration) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.IsFinished() {
		return worker.ErrRunCompleted
	}

	w, err := s.obtain(ctx, runID)
	if err != nil {
		return err
	}

	if err := w.Start(ctx, delay); err != nil {
		if errors.Is(err, worker.ErrRunCompleted) || errors.Is(err, worker.ErrWorkerStopped) {
			s.remove(runID, w)
		}
		return err
	}

	s.logger.Info("run started", "run_id", runID, "delay", w.Delay())
	return nil
}

// Pause ставит run на паузу.
func (s *Supervisor) Pause(runID uuid.UUID) error {
	w := s.get(runID)
	if w == nil {
		return ErrRunNotActive
	}
	return w.Pause()
}

// Resume снимает паузу.
func (s *Supervisor) Resume(runID uuid.UUID) error {
	w := s.get(runID)
	if w == nil {
		return ErrRunNotActive
	}
	return w.Resume()
}

// TogglePause переключает паузу и возвращает новое значение флага.
// Для run без воркера возвращает true: такой run и так не обрабатывается.
func (s *Supervisor) TogglePause(runID uuid.UUID) (bool, error) {
	w := s.get(runID)
	if w == nil {
		return true, nil
	}
	return w.TogglePause()
}

// RetryQuotaErrors возвращает в PENDING QUOTA items старше cool-down.
// Без воркера сброс выполняется напрямую в хранилище.
func (s *Supervisor) RetryQuotaErrors(ctx context.Context, runID uuid.UUID) (int, error) {
	return s.retryQuotaErrors(ctx, runID, s.now().Add(-s.coolDown))
}

// AutoResumeCheck выполняет проверку сброса квоты для живого воркера.
func (s *Supervisor) AutoResumeCheck(ctx context.Context, runID uuid.UUID) (bool, error) {
	w := s.get(runID)
	if w == nil {
		return false, ErrRunNotActive
	}
	return w.AutoResumeCheck(ctx)
}

// RetryQuotaErrorsAll сбрасывает QUOTA ошибки во всех RUNNING runs,
// с воркером и без. Возвращает общее число сброшенных items.
//
// Сбрасываются ошибки старше cool-down и все ошибки до resetAt:
// после сброса квоты они неактуальны, даже если cool-down не истёк.
func (s *Supervisor) RetryQuotaErrorsAll(ctx context.Context, resetAt time.Time) (int, error) {
	var (
		total int
		errs  []error
	)

	olderThan := s.now().Add(-s.coolDown)
	if resetAt.After(olderThan) {
		olderThan = resetAt
	}

	for offset := 0; ; offset += sweepPageSize {
		runs, err := s.store.ListRuns(ctx, repo.RunFilter{
			Status: domain.RunStatusRunning,
			Limit:  sweepPageSize,
			Offset: offset,
		})
		if err != nil {
			return total, fmt.Errorf("list running runs: %w", err)
		}

		for i := range runs {
			n, err := s.retryQuotaErrors(ctx, runs[i].ID, olderThan)
			if err != nil {
				errs = append(errs, fmt.Errorf("run %s: %w", runs[i].ID, err))
				continue
			}
			total += n
		}

		if len(runs) < sweepPageSize {
			break
		}
	}

	return total, errors.Join(errs...)
}

// IsPaused возвращает true, если воркер run на паузе. Для run без воркера — false.
func (s *Supervisor) IsPaused(runID uuid.UUID) bool {
	w := s.get(runID)
	return w != nil && w.IsPaused()
}

// WorkerState возвращает состояние воркера run, если он есть.
func (s *Supervisor) WorkerState(runID uuid.UUID) (worker.State, bool) {
	w := s.get(runID)
	if w == nil {
		return worker.StateIdle, false
	}
	return w.State(), true
}

// ActiveCount возвращает количество зарегистрированных воркеров.
func (s *Supervisor) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workers)
}

// Run потребляет команды из runs.control до отмены ctx.
// Без соединения просто ждёт отмены.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.conn == nil {
		<-ctx.Done()
		return nil
	}

	consumer := mq.NewConsumer(s.conn, s.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueRunsControl),
		Handler:  s.handleControl,
		Prefetch: 10,
	})
	s.mu.Lock()
	s.consumer = consumer
	s.mu.Unlock()

	s.logger.Info("control consumer started", "queue", mq.QueueRunsControl)

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("control consumer: %w", err)
	}
	return nil
}

// Stop останавливает все воркеры и освобождает аренды.
// Состояние runs в хранилище не меняется.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	entries := make([]*entry, 0, len(s.workers))
	for id, e := range s.workers {
		entries = append(entries, e)
		delete(s.workers, id)
	}
	consumer := s.consumer
	s.mu.Unlock()

	s.logger.Info("stopping supervisor...", "active_workers", len(entries))

	if consumer != nil {
		consumer.Stop()
	}

	for _, e := range entries {
		close(e.quit)
		e.w.Stop()
		s.releaseLease(e)
	}

	telemetry.ActiveWorkers.Set(0)
	s.logger.Info("supervisor stopped")
}

// --- Helpers ---

// get возвращает воркер run или nil.
func (s *Supervisor) get(runID uuid.UUID) *worker.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.workers[runID]; ok {
		return e.w
	}
	return nil
}

// obtain возвращает существующий воркер или создаёт новый, взяв аренду run.
func (s *Supervisor) obtain(ctx context.Context, runID uuid.UUID) (*worker.Worker, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.RLock()
	stopped := s.stopped
	e, ok := s.workers[runID]
	s.mu.RUnlock()

	if stopped {
		return nil, ErrSupervisorStopped
	}
	if ok {
		return e.w, nil
	}

	var held Lease
	if s.locker != nil {
		l, err := s.locker.Acquire(ctx, runID)
		if err != nil {
			return nil, err
		}
		held = l
	}

	cfg := s.workerCfg
	cfg.Store = s.store
	cfg.Logger = s.logger
	cfg.OnDone = s.onDone

	e = &entry{
		w:     worker.New(runID, cfg),
		lease: held,
		quit:  make(chan struct{}),
	}

	s.mu.Lock()
	s.workers[runID] = e
	n := len(s.workers)
	s.mu.Unlock()

	telemetry.ActiveWorkers.Set(float64(n))

	if held != nil {
		go s.watchLease(runID, e)
	}

	s.logger.Debug("worker registered", "run_id", runID, "active_workers", n)
	return e.w, nil
}

// onDone вызывается воркером из тика, когда run завершён.
func (s *Supervisor) onDone(runID uuid.UUID) {
	s.mu.RLock()
	e := s.workers[runID]
	s.mu.RUnlock()

	if e == nil {
		return
	}
	// Stop ждёт окончания текущего тика, а onDone вызывается изнутри тика.
	go s.remove(runID, e.w)
}

// remove удаляет воркер из реестра, останавливает его и освобождает аренду.
func (s *Supervisor) remove(runID uuid.UUID, w *worker.Worker) {
	s.mu.Lock()
	e, ok := s.workers[runID]
	if !ok || e.w != w {
		s.mu.Unlock()
		return
	}
	delete(s.workers, runID)
	n := len(s.workers)
	s.mu.Unlock()

	telemetry.ActiveWorkers.Set(float64(n))

	close(e.quit)
	e.w.Stop()
	s.releaseLease(e)

	s.logger.Debug("worker removed", "run_id", runID, "active_workers", n)
}

// watchLease останавливает воркер, если аренда потеряна.
func (s *Supervisor) watchLease(runID uuid.UUID, e *entry) {
	select {
	case <-e.quit:
	case <-e.lease.Lost():
		s.logger.Warn("run lease lost, stopping worker", "run_id", runID)
		s.remove(runID, e.w)
	}
}

func (s *Supervisor) releaseLease(e *entry) {
	if e.lease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultReleaseTimeout)
	defer cancel()
	if err := e.lease.Release(ctx); err != nil {
		s.logger.Warn("lease release failed", "run_id", e.w.RunID(), "error", err)
	}
}

// retryQuotaErrors сбрасывает QUOTA ошибки run с last_error_at < olderThan.
func (s *Supervisor) retryQuotaErrors(ctx context.Context, runID uuid.UUID, olderThan time.Time) (int, error) {
	if w := s.get(runID); w != nil {
		return w.ResetQuotaErrorsBefore(ctx, olderThan)
	}

	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return 0, err
	}

	n, err := s.store.ResetQuotaErrors(ctx, runID, olderThan)
	if err != nil {
		return 0, fmt.Errorf("reset quota errors: %w", err)
	}
	if n > 0 {
		telemetry.QuotaResetsTotal.Add(float64(n))
		s.logger.Info("quota errors reset without worker", "run_id", runID, "reset", n)
	}
	return n, nil
}
