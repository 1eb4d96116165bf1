package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/shaiso/Bulksub/internal/domain"
	"github.com/shaiso/Bulksub/internal/telemetry"
)

// Default configuration values.
const (
	DefaultDelay        = 8 * time.Second
	MinDelay            = 2 * time.Second
	defaultDrainFactor  = 5
	defaultCheckEvery   = 10
	defaultQuotaRecheck = 30 * time.Minute
	defaultCoolDown     = 4 * time.Hour
	defaultSuccessWin   = time.Hour
)

// Store — операции хранилища, которые нужны воркеру.
// Реализуется repo.Store и repo.MemoryStore.
type Store interface {
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	MarkRunStarted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkRunCompleted(ctx context.Context, id uuid.UUID, at time.Time) error
	NextPendingItem(ctx context.Context, runID uuid.UUID) (*domain.Item, error)
	RecordSuccess(ctx context.Context, item *domain.Item, at time.Time) error
	RecordFailure(ctx context.Context, item *domain.Item, tag domain.ErrorTag, msg string, at time.Time) error
	CountRetryable(ctx context.Context, runID uuid.UUID) (int, error)
	CountSucceededSince(ctx context.Context, since time.Time) (int, error)
	ResetQuotaErrors(ctx context.Context, runID uuid.UUID, olderThan time.Time) (int, error)
}

// Credentials — источник OAuth токена. Реализуется auth.Provider.
type Credentials interface {
	Token(ctx context.Context) (*oauth2.Token, error)
	Refresh(ctx context.Context, rejected *oauth2.Token) (*oauth2.Token, error)
}

// Subscriber — удалённое действие над одним каналом. Реализуется youtube.Client.
type Subscriber interface {
	Subscribe(ctx context.Context, channelID string, tok *oauth2.Token) error
}

// Config — конфигурация Worker.
type Config struct {
	// Dependencies
	Store       Store
	Credentials Credentials
	Client      Subscriber

	// Notifier — получатель событий жизненного цикла (опционально).
	Notifier Notifier

	// OnDone вызывается один раз, когда run перешёл в Completed (опционально).
	OnDone func(runID uuid.UUID)

	// Pacing
	MinDelay     time.Duration // нижняя граница delay (default: 2s)
	DefaultDelay time.Duration // delay, если не задан при Start (default: 8s)
	DrainFactor  int           // множитель delay в Draining (default: 5)

	// Quota handling
	CheckEvery    int           // авто-проверка на каждом N-м тике (default: 10)
	QuotaRecheck  time.Duration // период проверки на паузе (default: 30m)
	CoolDown      time.Duration // возраст QUOTA ошибки для сброса (default: 4h)
	SuccessWindow time.Duration // окно успешных подписок (default: 1h)

	// Now — источник времени (для тестов). Default: time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Worker обрабатывает items одного run.
//
// Все публичные методы потокобезопасны. Состояние живёт только в памяти
// и теряется при рестарте процесса.
type Worker struct {
	runID uuid.UUID

	store    Store
	creds    Credentials
	client   Subscriber
	notifier Notifier
	onDone   func(uuid.UUID)

	minDelay      time.Duration
	defaultDelay  time.Duration
	drainFactor   int
	checkEvery    int
	quotaRecheck  time.Duration
	coolDown      time.Duration
	successWindow time.Duration
	now           func() time.Time

	logger *slog.Logger

	// Lifecycle: базовый контекст для тиков, запущенных таймером.
	ctx    context.Context
	cancel context.CancelFunc

	// tickMu — не более одного тика одновременно.
	tickMu sync.Mutex

	// mu защищает поля ниже.
	mu          sync.Mutex
	state       State
	delay       time.Duration
	timer       *time.Timer
	gen         uint64
	recheck     *time.Timer
	recheckGen  uint64
	checkDue    bool
	sinceCheck  int
	pauseReason string
	stopped     bool
	doneOnce    sync.Once
}

// New создаёт Worker для run в состоянии Idle.
func New(runID uuid.UUID, cfg Config) *Worker {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = MinDelay
	}
	if cfg.DefaultDelay <= 0 {
		cfg.DefaultDelay = DefaultDelay
	}
	if cfg.DrainFactor <= 0 {
		cfg.DrainFactor = defaultDrainFactor
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCheckEvery
	}
	if cfg.QuotaRecheck <= 0 {
		cfg.QuotaRecheck = defaultQuotaRecheck
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = defaultCoolDown
	}
	if cfg.SuccessWindow <= 0 {
		cfg.SuccessWindow = defaultSuccessWin
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		runID:         runID,
		store:         cfg.Store,
		creds:         cfg.Credentials,
		client:        cfg.Client,
		notifier:      cfg.Notifier,
		onDone:        cfg.OnDone,
		minDelay:      cfg.MinDelay,
		defaultDelay:  cfg.DefaultDelay,
		drainFactor:   cfg.DrainFactor,
		checkEvery:    cfg.CheckEvery,
		quotaRecheck:  cfg.QuotaRecheck,
		coolDown:      cfg.CoolDown,
		successWindow: cfg.SuccessWindow,
		now:           cfg.Now,
		logger:        telemetry.WithRunID(logger, runID.String()),
		ctx:           ctx,
		cancel:        cancel,
		state:         StateIdle,
		delay:         cfg.DefaultDelay,
		checkDue:      true,
	}
}

// RunID возвращает ID обрабатываемого run.
func (w *Worker) RunID() uuid.UUID {
	return w.runID
}

// State возвращает текущее состояние.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// IsPaused возвращает true, если воркер на паузе.
func (w *Worker) IsPaused() bool {
	return w.State() == StatePaused
}

// Delay возвращает текущий pacing delay.
func (w *Worker) Delay() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.delay
}

// ClampDelay приводит запрошенный delay к допустимому:
// 0 → DefaultDelay, меньше MinDelay → MinDelay.
func (w *Worker) ClampDelay(d time.Duration) time.Duration {
	if d <= 0 {
		return w.defaultDelay
	}
	if d < w.minDelay {
		return w.minDelay
	}
	return d
}

// Start запускает (или перезапускает) обработку run.
//
// Допустим из Idle, Running, Paused и Draining. Отменяет таймер quota recheck,
// помечает run RUNNING, сбрасывает QUOTA ошибки старше CoolDown
// и планирует немедленный тик.
func (w *Worker) Start(ctx context.Context, delay time.Duration) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrWorkerStopped
	}
	prev := w.state
	if prev == StateCompleted {
		w.mu.Unlock()
		return ErrRunCompleted
	}
	if !canTransition(prev, StateRunning) {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, prev, StateRunning)
	}
	w.mu.Unlock()

	if err := w.store.MarkRunStarted(ctx, w.runID, w.now()); err != nil {
		return fmt.Errorf("mark run started: %w", err)
	}

	if n, err := w.store.ResetQuotaErrors(ctx, w.runID, w.now().Add(-w.coolDown)); err != nil {
		w.logger.Warn("quota reset on start failed", "error", err)
	} else if n > 0 {
		telemetry.QuotaResetsTotal.Add(float64(n))
		w.logger.Info("quota errors reset on start", "reset", n)
	}

	w.mu.Lock()
	if w.state == StateCompleted || w.stopped {
		w.mu.Unlock()
		return ErrRunCompleted
	}
	w.delay = w.ClampDelay(delay)
	w.state = StateRunning
	w.pauseReason = ""
	w.stopRecheckLocked()
	w.scheduleLocked(0)
	d := w.delay
	w.mu.Unlock()

	w.logger.Info("worker started", "delay", d, "previous_state", prev)

	evType := EventStarted
	if prev == StatePaused {
		evType = EventResumed
	}
	w.notify(evType, "start")
	return nil
}

// Pause приостанавливает планирование тиков.
// Попытка, выполняющаяся в данный момент, завершается и записывается.
func (w *Worker) Pause() error {
	return w.pause("manual")
}

// Resume снимает паузу и планирует немедленный тик.
// Для работающего воркера ничего не делает.
func (w *Worker) Resume() error {
	w.mu.Lock()
	switch w.state {
	case StateRunning, StateDraining:
		w.mu.Unlock()
		return nil
	case StateCompleted:
		w.mu.Unlock()
		return ErrRunCompleted
	}
	if w.stopped {
		w.mu.Unlock()
		return ErrWorkerStopped
	}
	if err := w.transitionLocked(StateRunning); err != nil {
		w.mu.Unlock()
		return err
	}
	w.pauseReason = ""
	w.stopRecheckLocked()
	w.scheduleLocked(0)
	w.mu.Unlock()

	w.logger.Info("worker resumed")
	w.notify(EventResumed, "manual")
	return nil
}

// TogglePause переключает паузу. Возвращает новое значение флага paused.
func (w *Worker) TogglePause() (bool, error) {
	if w.IsPaused() {
		if err := w.Resume(); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := w.Pause(); err != nil {
		return false, err
	}
	return true, nil
}

// Stop останавливает воркер: отменяет таймеры и контекст,
// дожидается завершения текущего тика. Состояние run в хранилище не меняется.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.stopTimerLocked()
	w.stopRecheckLocked()
	w.mu.Unlock()

	w.cancel()

	// Ждём тик, выполняющийся в данный момент.
	w.tickMu.Lock()
	w.tickMu.Unlock()
}

// --- Helpers ---

// pause переводит воркер в Paused по указанной причине.
func (w *Worker) pause(reason string) error {
	w.mu.Lock()
	if w.state == StatePaused {
		w.mu.Unlock()
		return nil
	}
	if w.state == StateCompleted {
		w.mu.Unlock()
		return ErrRunCompleted
	}
	if err := w.transitionLocked(StatePaused); err != nil {
		w.mu.Unlock()
		return err
	}
	w.pauseReason = reason
	w.stopTimerLocked()
	if reason == "quota" {
		w.armRecheckLocked()
	}
	w.mu.Unlock()

	telemetry.PausesTotal.WithLabelValues(reason).Inc()
	w.logger.Info("worker paused", "reason", reason)
	w.notify(EventPaused, reason)
	return nil
}

// transitionLocked меняет состояние с проверкой. Вызывается под mu.
func (w *Worker) transitionLocked(to State) error {
	if !canTransition(w.state, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, w.state, to)
	}
	w.state = to
	return nil
}

// scheduleLocked планирует тик через d. Вызывается под mu.
func (w *Worker) scheduleLocked(d time.Duration) {
	w.stopTimerLocked()
	gen := w.gen
	w.timer = time.AfterFunc(d, func() { w.fire(gen) })
}

// stopTimerLocked останавливает pacing таймер и инвалидирует его поколение.
func (w *Worker) stopTimerLocked() {
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// armRecheckLocked взводит таймер проверки квоты на паузе.
func (w *Worker) armRecheckLocked() {
	w.stopRecheckLocked()
	gen := w.recheckGen
	w.recheck = time.AfterFunc(w.quotaRecheck, func() { w.recheckFired(gen) })
}

// stopRecheckLocked останавливает таймер проверки квоты.
func (w *Worker) stopRecheckLocked() {
	w.recheckGen++
	if w.recheck != nil {
		w.recheck.Stop()
		w.recheck = nil
	}
}

// fire — обработчик pacing таймера.
func (w *Worker) fire(gen uint64) {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	w.mu.Lock()
	if gen != w.gen || w.stopped || !w.state.IsActive() {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	next, again := w.step(w.ctx)
	if !again {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Пока шёл тик, могли вызвать Start/Resume/Pause: тогда планирование уже сделано ими.
	if gen != w.gen || w.stopped || !w.state.IsActive() {
		return
	}
	w.scheduleLocked(next)
}

// recheckFired — обработчик таймера проверки квоты.
func (w *Worker) recheckFired(gen uint64) {
	w.mu.Lock()
	if gen != w.recheckGen || w.stopped || w.state != StatePaused {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	resumed, err := w.AutoResumeCheck(w.ctx)
	if err != nil {
		w.logger.Warn("quota recheck failed", "error", err)
	}
	if resumed {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen == w.recheckGen && !w.stopped && w.state == StatePaused {
		w.armRecheckLocked()
	}
}

// complete переводит воркер в Completed и останавливает все таймеры.
func (w *Worker) complete() {
	w.mu.Lock()
	if err := w.transitionLocked(StateCompleted); err != nil {
		w.mu.Unlock()
		w.logger.Warn("complete rejected", "error", err)
		return
	}
	w.stopTimerLocked()
	w.stopRecheckLocked()
	w.mu.Unlock()

	w.logger.Info("run completed")
	w.notify(EventCompleted, "")

	w.doneOnce.Do(func() {
		if w.onDone != nil {
			w.onDone(w.runID)
		}
	})
}
