package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/shaiso/Bulksub/internal/domain"
)

// Repository — полный набор операций хранилища.
// Реализуется Store (Postgres) и MemoryStore.
type Repository interface {
	CreateRun(ctx context.Context, run *domain.Run, entries []domain.Entry) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error)
	MarkRunStarted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkRunCompleted(ctx context.Context, id uuid.UUID, at time.Time) error

	NextPendingItem(ctx context.Context, runID uuid.UUID) (*domain.Item, error)
	RecentItems(ctx context.Context, runID uuid.UUID, limit int) ([]domain.Item, error)
	CountByRun(ctx context.Context, runID uuid.UUID) (domain.ItemCounts, error)
	CountRetryable(ctx context.Context, runID uuid.UUID) (int, error)
	CountSucceededSince(ctx context.Context, since time.Time) (int, error)

	RecordSuccess(ctx context.Context, item *domain.Item, at time.Time) error
	RecordFailure(ctx context.Context, item *domain.Item, tag domain.ErrorTag, msg string, at time.Time) error
	ResetQuotaErrors(ctx context.Context, runID uuid.UUID, olderThan time.Time) (int, error)

	LoadToken(ctx context.Context) (*oauth2.Token, error)
	SaveToken(ctx context.Context, tok *oauth2.Token) error
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*MemoryStore)(nil)
)
