package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/shaiso/Bulksub/internal/repo"
	"github.com/shaiso/Bulksub/internal/worker"
)

// Default configuration values.
const (
	defaultMaxUpload   = 10 << 20
	defaultRecentLimit = 20
)

// Controller — команды управления runs. Реализуется orchestrator.Supervisor.
type Controller interface {
	Start(ctx context.Context, runID uuid.UUID, delay time.Duration) error
	TogglePause(runID uuid.UUID) (bool, error)
	RetryQuotaErrors(ctx context.Context, runID uuid.UUID) (int, error)
	AutoResumeCheck(ctx context.Context, runID uuid.UUID) (bool, error)
	IsPaused(runID uuid.UUID) bool
	WorkerState(runID uuid.UUID) (worker.State, bool)
}

// Authenticator — OAuth flow. Реализуется auth.Provider.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Authenticated(ctx context.Context) (bool, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store      repo.Repository
	controller Controller
	auth       Authenticator
	maxUpload  int64
	now        func() time.Time
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store      repo.Repository
	Controller Controller

	// Auth — OAuth provider. Nil, если OAuth клиент не настроен.
	Auth Authenticator

	// MaxUpload — максимальный размер загружаемого CSV (default: 10MB).
	MaxUpload int64

	// Now — источник времени (для тестов). Default: time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	maxUpload := cfg.MaxUpload
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		store:      cfg.Store,
		controller: cfg.Controller,
		auth:       cfg.Auth,
		maxUpload:  maxUpload,
		now:        now,
		logger:     logger,
	}
}
