package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/shaiso/Bulksub/internal/domain"
)

// MemoryStore — реализация хранилища в памяти.
//
// Используется, когда DB_URL не задан (локальный запуск, тесты).
// Все операции выполняются под одним мьютексом, что даёт ту же
// атомарность item + счётчиков run, что и транзакции в Store.
// Наружу отдаются только копии.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*domain.Run
	items map[uuid.UUID][]*domain.Item
	token *oauth2.Token
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[uuid.UUID]*domain.Run),
		items: make(map[uuid.UUID][]*domain.Item),
	}
}

// --- Runs ---

// CreateRun сохраняет run и items, отбрасывая повторяющиеся ChannelID.
func (m *MemoryStore) CreateRun(_ context.Context, run *domain.Run, entries []domain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; ok {
		return ErrAlreadyExists
	}

	seen := make(map[string]struct{}, len(entries))
	items := make([]*domain.Item, 0, len(entries))
	for i, e := range entries {
		if _, ok := seen[e.ChannelID]; ok {
			continue
		}
		seen[e.ChannelID] = struct{}{}
		items = append(items, domain.NewItem(run.ID, e, i, run.CreatedAt))
	}

	run.Total = len(items)
	stored := *run
	m.runs[run.ID] = &stored
	m.items[run.ID] = items
	return nil
}

// GetRun возвращает run по ID.
func (m *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

// ListRuns возвращает runs, новые первыми.
func (m *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var runs []domain.Run
	for _, run := range m.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filter.Offset >= len(runs) {
		return nil, nil
	}
	runs = runs[filter.Offset:]
	if limit := filter.limit(); len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// MarkRunStarted переводит run в RUNNING, started_at — только при первом запуске.
func (m *MemoryStore) MarkRunStarted(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.MarkRunning(at)
	return nil
}

// MarkRunCompleted переводит run в COMPLETED.
func (m *MemoryStore) MarkRunCompleted(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.MarkCompleted(at)
	return nil
}

// --- Items ---

// NextPendingItem возвращает самый старый PENDING item run.
func (m *MemoryStore) NextPendingItem(_ context.Context, runID uuid.UUID) (*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var next *domain.Item
	for _, item := range m.items[runID] {
		if item.Status != domain.ItemStatusPending {
			continue
		}
		if next == nil || item.CreatedAt.Before(next.CreatedAt) ||
			(item.CreatedAt.Equal(next.CreatedAt) && item.Position < next.Position) {
			next = item
		}
	}
	if next == nil {
		return nil, ErrNotFound
	}
	return copyItem(next), nil
}

// RecentItems возвращает последние не-PENDING items run по updated_at desc.
func (m *MemoryStore) RecentItems(_ context.Context, runID uuid.UUID, limit int) ([]domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []domain.Item
	for _, item := range m.items[runID] {
		if item.Status != domain.ItemStatusPending {
			items = append(items, *copyItem(item))
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// CountByRun возвращает количество items run по статусам и тегам.
func (m *MemoryStore) CountByRun(_ context.Context, runID uuid.UUID) (domain.ItemCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var counts domain.ItemCounts
	for _, item := range m.items[runID] {
		counts.Add(item)
	}
	return counts, nil
}

// CountRetryable возвращает количество ERROR items с тегом QUOTA, NETWORK или AUTH.
func (m *MemoryStore) CountRetryable(_ context.Context, runID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, item := range m.items[runID] {
		if item.Status == domain.ItemStatusError && item.ErrorTag != nil && item.ErrorTag.IsRetryable() {
			n++
		}
	}
	return n, nil
}

// CountSucceededSince возвращает количество SUCCESS items по всем runs с updated_at >= since.
func (m *MemoryStore) CountSucceededSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, items := range m.items {
		for _, item := range items {
			if item.Status == domain.ItemStatusSuccess && !item.UpdatedAt.Before(since) {
				n++
			}
		}
	}
	return n, nil
}

// RecordSuccess атомарно переводит item в SUCCESS и обновляет счётчики run.
func (m *MemoryStore) RecordSuccess(_ context.Context, item *domain.Item, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, run, err := m.pendingItem(item)
	if err != nil {
		return err
	}

	stored.MarkSuccess(at)
	run.Processed++
	run.Success++

	*item = *copyItem(stored)
	return nil
}

// RecordFailure атомарно переводит item в ERROR и обновляет счётчики run.
func (m *MemoryStore) RecordFailure(_ context.Context, item *domain.Item, tag domain.ErrorTag, msg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, run, err := m.pendingItem(item)
	if err != nil {
		return err
	}

	stored.MarkError(tag, msg, at)
	run.Processed++
	run.Error++

	*item = *copyItem(stored)
	return nil
}

// ResetQuotaErrors возвращает в PENDING QUOTA items с last_error_at < olderThan.
func (m *MemoryStore) ResetQuotaErrors(_ context.Context, runID uuid.UUID, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return 0, nil
	}

	now := time.Now()
	reset := 0
	for _, item := range m.items[runID] {
		if item.Status != domain.ItemStatusError || !item.HasTag(domain.ErrorTagQuota) {
			continue
		}
		if item.LastErrorAt == nil || !item.LastErrorAt.Before(olderThan) {
			continue
		}
		item.ResetForRetry(now)
		reset++
	}

	run.Processed -= reset
	run.Error -= reset
	return reset, nil
}

// --- Token ---

// LoadToken возвращает сохранённый токен или ErrNotFound.
func (m *MemoryStore) LoadToken(_ context.Context) (*oauth2.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == nil {
		return nil, ErrNotFound
	}
	cp := *m.token
	return &cp, nil
}

// SaveToken сохраняет токен. Пустой refresh token не затирает сохранённый.
func (m *MemoryStore) SaveToken(_ context.Context, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *tok
	if cp.RefreshToken == "" && m.token != nil {
		cp.RefreshToken = m.token.RefreshToken
	}
	m.token = &cp
	return nil
}

// --- Helpers ---

// pendingItem находит сохранённый item и его run. Вызывается под m.mu.
func (m *MemoryStore) pendingItem(item *domain.Item) (*domain.Item, *domain.Run, error) {
	run, ok := m.runs[item.RunID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	for _, stored := range m.items[item.RunID] {
		if stored.ID != item.ID {
			continue
		}
		if stored.Status != domain.ItemStatusPending {
			return nil, nil, ErrInvalidState
		}
		return stored, run, nil
	}
	return nil, nil, ErrNotFound
}

func copyItem(item *domain.Item) *domain.Item {
	cp := *item
	if item.ErrorTag != nil {
		tag := *item.ErrorTag
		cp.ErrorTag = &tag
	}
	if item.ErrorMessage != nil {
		msg := *item.ErrorMessage
		cp.ErrorMessage = &msg
	}
	if item.LastErrorAt != nil {
		at := *item.LastErrorAt
		cp.LastErrorAt = &at
	}
	return &cp
}
