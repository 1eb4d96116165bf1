package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Bulksub/internal/mq"
	"github.com/shaiso/Bulksub/internal/repo"
	"github.com/shaiso/Bulksub/internal/telemetry"
	"github.com/shaiso/Bulksub/internal/worker"
)

// handleControl обрабатывает команду из runs.control.
//
// Невалидные и неприменимые команды уходят в DLQ, временные ошибки
// хранилища возвращают сообщение в очередь.
func (s *Supervisor) handleControl(ctx context.Context, delivery *mq.Delivery) error {
	cmd, err := mq.ParseControl(&delivery.Message)
	if err != nil {
		telemetry.ControlCommandsTotal.WithLabelValues("unknown", "invalid").Inc()
		s.logger.Warn("invalid control command", "message_id", delivery.Message.ID, "error", err)
		return err
	}

	log := telemetry.WithRunID(s.logger, cmd.RunID.String()).With("action", cmd.Action)
	log.Debug("received control command")

	err = s.apply(ctx, cmd)
	switch {
	case err == nil:
		telemetry.ControlCommandsTotal.WithLabelValues(string(cmd.Action), "ok").Inc()
		return nil

	case isRejection(err):
		telemetry.ControlCommandsTotal.WithLabelValues(string(cmd.Action), "rejected").Inc()
		log.Warn("control command rejected", "error", err)
		return fmt.Errorf("%w: %v", mq.ErrPermanent, err)

	default:
		telemetry.ControlCommandsTotal.WithLabelValues(string(cmd.Action), "failed").Inc()
		log.Error("control command failed", "error", err)
		return err
	}
}

// apply выполняет команду управления.
func (s *Supervisor) apply(ctx context.Context, cmd mq.ControlPayload) error {
	var err error
	switch cmd.Action {
	case mq.ActionStart:
		err = s.Start(ctx, cmd.RunID, time.Duration(cmd.DelayMs)*time.Millisecond)
	case mq.ActionPause:
		err = s.Pause(cmd.RunID)
	case mq.ActionResume:
		err = s.Resume(cmd.RunID)
	case mq.ActionToggle:
		_, err = s.TogglePause(cmd.RunID)
	case mq.ActionRetryQuota:
		_, err = s.RetryQuotaErrors(ctx, cmd.RunID)
	case mq.ActionAutoResume:
		_, err = s.AutoResumeCheck(ctx, cmd.RunID)
	default:
		err = fmt.Errorf("%w: unknown action %q", mq.ErrPermanent, cmd.Action)
	}
	return err
}

// isRejection — ошибка, при которой повтор команды бессмыслен.
func isRejection(err error) bool {
	return errors.Is(err, repo.ErrNotFound) ||
		errors.Is(err, worker.ErrRunCompleted) ||
		errors.Is(err, worker.ErrInvalidTransition) ||
		errors.Is(err, ErrRunNotActive) ||
		errors.Is(err, ErrRunLeased) ||
		errors.Is(err, mq.ErrPermanent)
}
