package mq

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Bulksub/internal/worker"
)

// EventPublisher — то, что нужно RunNotifier от Publisher.
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, msgType MessageType, payload RunEventPayload) error
}

// RunNotifier публикует события воркеров в bulksub.runs.
//
// Ошибки публикации только логируются.
type RunNotifier struct {
	pub     EventPublisher
	logger  *slog.Logger
	timeout time.Duration
}

// NewRunNotifier создаёт RunNotifier.
func NewRunNotifier(pub EventPublisher, logger *slog.Logger) *RunNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunNotifier{
		pub:     pub,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Notify реализует worker.Notifier.
func (n *RunNotifier) Notify(ctx context.Context, ev worker.Event) {
	// Контекст воркера может быть уже отменён (Stop), а событие всё равно нужно отправить.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	payload := RunEventPayload{
		RunID:  ev.RunID,
		Reason: ev.Reason,
		At:     ev.At,
	}
	if err := n.pub.PublishRunEvent(ctx, MessageType(ev.Type), payload); err != nil {
		n.logger.Warn("failed to publish run event",
			"run_id", ev.RunID,
			"type", ev.Type,
			"error", err,
		)
	}
}

var _ worker.Notifier = (*RunNotifier)(nil)
