package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Bulksub/internal/domain"
)

const itemColumns = `id, run_id, channel_id, title, url, position, status, attempts,
	error_tag, error_message, last_error_at, created_at, updated_at`

// ItemRepo — репозиторий для чтения items.
// Изменения items, затрагивающие счётчики run, выполняет Store в транзакции.
type ItemRepo struct {
	pool *pgxpool.Pool
}

// NewItemRepo создаёт новый ItemRepo.
func NewItemRepo(pool *pgxpool.Pool) *ItemRepo {
	return &ItemRepo{pool: pool}
}

// NextPendingItem возвращает самый старый PENDING item run.
// Возвращает ErrNotFound, если таких нет.
func (r *ItemRepo) NextPendingItem(ctx context.Context, runID uuid.UUID) (*domain.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE run_id = $1 AND status = 'PENDING'
		ORDER BY created_at ASC, position ASC
		LIMIT 1
	`
	return scanItem(r.pool.QueryRow(ctx, query, runID))
}

// RecentItems возвращает последние обработанные (не PENDING) items run.
func (r *ItemRepo) RecentItems(ctx context.Context, runID uuid.UUID, limit int) ([]domain.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE run_id = $1 AND status <> 'PENDING'
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CountByRun возвращает количество items run по статусам и тегам ошибок.
func (r *ItemRepo) CountByRun(ctx context.Context, runID uuid.UUID) (domain.ItemCounts, error) {
	query := `
		SELECT status, error_tag, count(*)
		FROM items
		WHERE run_id = $1
		GROUP BY status, error_tag
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return domain.ItemCounts{}, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	var counts domain.ItemCounts
	for rows.Next() {
		var status domain.ItemStatus
		var tag *string
		var n int
		if err := rows.Scan(&status, &tag, &n); err != nil {
			return domain.ItemCounts{}, fmt.Errorf("scan counts: %w", err)
		}
		switch status {
		case domain.ItemStatusPending:
			counts.Pending += n
		case domain.ItemStatusSuccess:
			counts.Success += n
		case domain.ItemStatusError:
			counts.AddTag(domain.ParseErrorTag(stringValue(tag)), n)
		}
	}
	return counts, rows.Err()
}

// CountRetryable возвращает количество ERROR items run с тегом QUOTA, NETWORK или AUTH.
func (r *ItemRepo) CountRetryable(ctx context.Context, runID uuid.UUID) (int, error) {
	query := `
		SELECT count(*)
		FROM items
		WHERE run_id = $1 AND status = 'ERROR' AND error_tag IN ('QUOTA', 'NETWORK', 'AUTH')
	`
	var n int
	if err := r.pool.QueryRow(ctx, query, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count retryable: %w", err)
	}
	return n, nil
}

// CountSucceededSince возвращает количество items (по всем runs),
// переведённых в SUCCESS начиная с since.
func (r *ItemRepo) CountSucceededSince(ctx context.Context, since time.Time) (int, error) {
	query := `SELECT count(*) FROM items WHERE status = 'SUCCESS' AND updated_at >= $1`
	var n int
	if err := r.pool.QueryRow(ctx, query, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count succeeded: %w", err)
	}
	return n, nil
}

// --- Helpers ---

// scanItem сканирует одну строку в Item.
func scanItem(row pgx.Row) (*domain.Item, error) {
	var item domain.Item
	var title, url, tag *string

	err := row.Scan(
		&item.ID,
		&item.RunID,
		&item.ChannelID,
		&title,
		&url,
		&item.Position,
		&item.Status,
		&item.Attempts,
		&tag,
		&item.ErrorMessage,
		&item.LastErrorAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}

	item.Title = stringValue(title)
	item.URL = stringValue(url)
	if tag != nil {
		t := domain.ParseErrorTag(*tag)
		item.ErrorTag = &t
	}
	return &item, nil
}
