package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — одно пакетное выполнение подписок.
//
// Run создаётся при загрузке списка каналов (CSV или JSON) и
// изменяется только воркером, который его обрабатывает.
// Ядро run никогда не удаляет.
//
// Инвариант: Processed == Success + Error, Processed <= Total.
// Сброс QUOTA ошибок возвращает items в PENDING и уменьшает Error и Processed,
// поэтому Processed может убывать, пока run в статусе RUNNING.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Total — количество items (после дедупликации).
	Total int `json:"total"`

	// Processed — количество завершённых попыток (Success + Error).
	Processed int `json:"processed"`

	// Success — количество успешных подписок.
	Success int `json:"success"`

	// Error — количество items в статусе ERROR.
	Error int `json:"error"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время первого запуска воркера. Nil, если run не запускался.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения. Nil, пока run не COMPLETED.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun() *Run {
	return &Run{
		ID:        uuid.New(),
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}
}

// Pending возвращает количество ещё не обработанных items.
func (r *Run) Pending() int {
	return r.Total - r.Processed
}

// IsFinished возвращает true, если run завершён.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// MarkRunning переводит run в статус RUNNING.
// StartedAt выставляется только при первом запуске.
func (r *Run) MarkRunning(at time.Time) {
	r.Status = RunStatusRunning
	if r.StartedAt == nil {
		r.StartedAt = &at
	}
}

// MarkCompleted переводит run в статус COMPLETED.
func (r *Run) MarkCompleted(at time.Time) {
	r.Status = RunStatusCompleted
	r.FinishedAt = &at
}
