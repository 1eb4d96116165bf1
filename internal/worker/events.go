package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType — тип события жизненного цикла run.
type EventType string

const (
	EventStarted   EventType = "run.started"
	EventPaused    EventType = "run.paused"
	EventResumed   EventType = "run.resumed"
	EventCompleted EventType = "run.completed"
)

// Event — событие жизненного цикла run.
type Event struct {
	RunID  uuid.UUID
	Type   EventType
	Reason string
	At     time.Time
}

// Notifier получает события воркера.
// Реализация не должна блокироваться надолго: вызывается из тика.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc — адаптер функции к Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify вызывает f.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) {
	f(ctx, ev)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

func (w *Worker) notify(t EventType, reason string) {
	w.notifier.Notify(w.ctx, Event{
		RunID:  w.runID,
		Type:   t,
		Reason: reason,
		At:     w.now(),
	})
}
