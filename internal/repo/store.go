package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Bulksub/internal/domain"
)

// Store объединяет репозитории и выполняет операции, которые должны
// атомарно менять и items, и счётчики run.
//
// Все изменения счётчиков идут в одной транзакции с изменением item,
// поэтому читатель статуса никогда не видит расхождения
// processed != success + error.
type Store struct {
	*RunRepo
	*ItemRepo
	*TokenRepo

	pool *pgxpool.Pool
}

// NewStore создаёт Store поверх пула.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		RunRepo:   NewRunRepo(pool),
		ItemRepo:  NewItemRepo(pool),
		TokenRepo: NewTokenRepo(pool),
		pool:      pool,
	}
}

// CreateRun сохраняет run и его items в одной транзакции.
//
// Повторяющиеся ChannelID отбрасываются (ON CONFLICT DO NOTHING),
// run.Total выставляется в число фактически вставленных items.
func (s *Store) CreateRun(ctx context.Context, run *domain.Run, entries []domain.Entry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO runs (id, status, total, created_at)
			VALUES ($1, $2, 0, $3)
		`, run.ID, run.Status, run.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for i, e := range entries {
			item := domain.NewItem(run.ID, e, i, run.CreatedAt)
			batch.Queue(`
				INSERT INTO items (id, run_id, channel_id, title, url, position, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', $7, $7)
				ON CONFLICT (run_id, channel_id) DO NOTHING
			`, item.ID, item.RunID, item.ChannelID, nullString(item.Title), nullString(item.URL), item.Position, item.CreatedAt)
		}

		inserted := 0
		if batch.Len() > 0 {
			results := tx.SendBatch(ctx, batch)
			for range entries {
				tag, err := results.Exec()
				if err != nil {
					results.Close()
					return fmt.Errorf("insert item: %w", err)
				}
				inserted += int(tag.RowsAffected())
			}
			if err := results.Close(); err != nil {
				return fmt.Errorf("close batch: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `UPDATE runs SET total = $2 WHERE id = $1`, run.ID, inserted); err != nil {
			return fmt.Errorf("update total: %w", err)
		}

		run.Total = inserted
		return nil
	})
}

// RecordSuccess атомарно переводит item в SUCCESS и увеличивает processed/success run.
func (s *Store) RecordSuccess(ctx context.Context, item *domain.Item, at time.Time) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE items
			SET status = 'SUCCESS', attempts = attempts + 1,
			    error_tag = NULL, error_message = NULL, last_error_at = NULL, updated_at = $2
			WHERE id = $1 AND status = 'PENDING'
		`, item.ID, at)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrInvalidState
		}

		return bumpCounters(ctx, tx, item.RunID, "success")
	})
	if err != nil {
		return err
	}

	item.MarkSuccess(at)
	return nil
}

// RecordFailure атомарно переводит item в ERROR с тегом и сообщением
// и увеличивает processed/error run.
func (s *Store) RecordFailure(ctx context.Context, item *domain.Item, tag domain.ErrorTag, msg string, at time.Time) error {
	msg = domain.TruncateMessage(msg)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE items
			SET status = 'ERROR', attempts = attempts + 1,
			    error_tag = $2, error_message = $3, last_error_at = $4, updated_at = $4
			WHERE id = $1 AND status = 'PENDING'
		`, item.ID, tag, msg, at)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrInvalidState
		}

		return bumpCounters(ctx, tx, item.RunID, "error")
	})
	if err != nil {
		return err
	}

	item.MarkError(tag, msg, at)
	return nil
}

// ResetQuotaErrors возвращает в PENDING все QUOTA items run,
// последняя ошибка которых старше olderThan.
//
// В той же транзакции processed и error run уменьшаются на число
// сброшенных items. Возвращает количество сброшенных items.
func (s *Store) ResetQuotaErrors(ctx context.Context, runID uuid.UUID, olderThan time.Time) (int, error) {
	var reset int

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE items
			SET status = 'PENDING', error_tag = NULL, last_error_at = NULL, updated_at = now()
			WHERE run_id = $1 AND status = 'ERROR' AND error_tag = 'QUOTA' AND last_error_at < $2
		`, runID, olderThan)
		if err != nil {
			return fmt.Errorf("reset quota items: %w", err)
		}

		reset = int(result.RowsAffected())
		if reset == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE runs
			SET processed = processed - $2, error = error - $2
			WHERE id = $1
		`, runID, reset)
		if err != nil {
			return fmt.Errorf("update run counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// --- Helpers ---

// bumpCounters увеличивает processed и указанный счётчик (success или error).
func bumpCounters(ctx context.Context, q querier, runID uuid.UUID, column string) error {
	var query string
	switch column {
	case "success":
		query = `UPDATE runs SET processed = processed + 1, success = success + 1 WHERE id = $1`
	case "error":
		query = `UPDATE runs SET processed = processed + 1, error = error + 1 WHERE id = $1`
	default:
		return fmt.Errorf("unknown counter %q", column)
	}

	result, err := q.Exec(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
