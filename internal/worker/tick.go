package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/Bulksub/internal/classify"
	"github.com/shaiso/Bulksub/internal/domain"
	"github.com/shaiso/Bulksub/internal/repo"
	"github.com/shaiso/Bulksub/internal/telemetry"
)

// step выполняет один тик.
//
// Возвращает задержку до следующего тика и флаг, нужно ли его планировать.
// false означает, что воркер на паузе, завершён или остановлен.
func (w *Worker) step(ctx context.Context) (time.Duration, bool) {
	if w.autoCheckDue() {
		if _, err := w.autoResume(ctx, true); err != nil {
			w.logger.Warn("auto-resume check failed", "error", err)
		}
	}

	w.mu.Lock()
	state, delay := w.state, w.delay
	w.mu.Unlock()

	if !state.IsActive() {
		return 0, false
	}

	item, err := w.store.NextPendingItem(ctx, w.runID)
	if errors.Is(err, repo.ErrNotFound) {
		return w.drainOrComplete(ctx, delay)
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		w.logger.Error("fetch next item failed", "error", err)
		return delay, true
	}

	if state == StateDraining {
		w.setActiveState(StateRunning)
	}

	log := telemetry.WithItemID(w.logger, item.ID.String()).With("channel_id", item.ChannelID)

	callErr := w.attempt(ctx, item)
	if ctx.Err() != nil {
		// Воркер остановлен посреди вызова: item остаётся PENDING.
		log.Info("attempt interrupted", "error", callErr)
		return 0, false
	}

	now := w.now()

	if callErr == nil {
		if err := w.store.RecordSuccess(ctx, item, now); err != nil {
			log.Error("record success failed", "error", err)
			return delay, true
		}
		telemetry.AttemptsTotal.WithLabelValues("success").Inc()
		log.Debug("subscribed")
		return delay, true
	}

	res := classify.ClassifyError(callErr)
	if err := w.store.RecordFailure(ctx, item, res.Tag, callErr.Error(), now); err != nil {
		log.Error("record failure failed", "error", err, "tag", res.Tag)
		return delay, true
	}
	telemetry.AttemptsTotal.WithLabelValues(strings.ToLower(string(res.Tag))).Inc()
	log.Warn("subscribe failed", "tag", res.Tag, "retryable", res.Retryable, "error", callErr)

	if res.Tag == domain.ErrorTagQuota {
		if err := w.pause("quota"); err != nil && !errors.Is(err, ErrRunCompleted) {
			log.Warn("quota pause failed", "error", err)
		}
		return 0, false
	}

	return delay, true
}

// attempt выполняет удалённый вызов для item.
//
// При ответе 401 один раз принудительно обновляет токен и повторяет вызов.
func (w *Worker) attempt(ctx context.Context, item *domain.Item) error {
	tok, err := w.creds.Token(ctx)
	if err != nil {
		return credentialFailure(err)
	}

	err = w.client.Subscribe(ctx, item.ChannelID, tok)
	if err == nil || !isUnauthorized(err) {
		return err
	}

	w.logger.Info("access token rejected, refreshing", "channel_id", item.ChannelID)

	fresh, rerr := w.creds.Refresh(ctx, tok)
	if rerr != nil {
		if classify.ClassifyError(rerr).Tag == domain.ErrorTagNetwork {
			return credentialFailure(rerr)
		}
		return fmt.Errorf("%w (refresh: %v)", err, rerr)
	}

	return w.client.Subscribe(ctx, item.ChannelID, fresh)
}

// drainOrComplete вызывается, когда PENDING items закончились.
//
// Нет retryable ошибок → run COMPLETED. Иначе воркер переходит в Draining
// и проверяет снова через DrainFactor × delay.
func (w *Worker) drainOrComplete(ctx context.Context, delay time.Duration) (time.Duration, bool) {
	n, err := w.store.CountRetryable(ctx, w.runID)
	if err != nil {
		w.logger.Error("count retryable failed", "error", err)
		return delay, true
	}

	if n == 0 {
		if err := w.store.MarkRunCompleted(ctx, w.runID, w.now()); err != nil {
			w.logger.Error("mark run completed failed", "error", err)
			return delay, true
		}
		w.complete()
		return 0, false
	}

	if w.setActiveState(StateDraining) {
		w.logger.Info("draining", "retryable", n)
	}
	return delay * time.Duration(w.drainFactor), true
}

// AutoResumeCheck проверяет, сброшена ли квота, и при необходимости
// возвращает QUOTA items в очередь.
//
// Квота считается сброшенной, если за последний SuccessWindow была хотя бы
// одна успешная подписка в любом run. Возвращает true, если был сброшен
// хотя бы один item и воркер был на паузе (теперь Running).
func (w *Worker) AutoResumeCheck(ctx context.Context) (bool, error) {
	return w.autoResume(ctx, false)
}

// ResetQuotaErrors возвращает в PENDING QUOTA items старше CoolDown.
// Если сброшен хотя бы один item, а воркер на паузе, он возобновляется.
func (w *Worker) ResetQuotaErrors(ctx context.Context) (int, error) {
	return w.ResetQuotaErrorsBefore(ctx, w.now().Add(-w.coolDown))
}

// ResetQuotaErrorsBefore возвращает в PENDING QUOTA items с ошибкой до olderThan.
// Используется ежедневным sweep, который передаёт момент сброса квоты.
func (w *Worker) ResetQuotaErrorsBefore(ctx context.Context, olderThan time.Time) (int, error) {
	n, _, err := w.resetQuota(ctx, olderThan, false)
	return n, err
}

// --- Helpers ---

func (w *Worker) autoResume(ctx context.Context, inTick bool) (bool, error) {
	n, err := w.store.CountSucceededSince(ctx, w.now().Add(-w.successWindow))
	if err != nil {
		return false, fmt.Errorf("count recent successes: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, resumed, err := w.resetQuota(ctx, w.now().Add(-w.coolDown), inTick)
	return resumed, err
}

// resetQuota сбрасывает QUOTA items с ошибкой до olderThan и возобновляет воркер.
// Внутри тика (inTick) новый тик не планируется: текущий продолжит работу сам.
func (w *Worker) resetQuota(ctx context.Context, olderThan time.Time, inTick bool) (int, bool, error) {
	n, err := w.store.ResetQuotaErrors(ctx, w.runID, olderThan)
	if err != nil {
		return 0, false, fmt.Errorf("reset quota errors: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	telemetry.QuotaResetsTotal.Add(float64(n))

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return n, false, nil
	}
	wasPaused := w.state == StatePaused
	switch w.state {
	case StatePaused, StateDraining:
		_ = w.transitionLocked(StateRunning)
		w.pauseReason = ""
		w.stopRecheckLocked()
		if !inTick {
			w.scheduleLocked(0)
		}
	}
	w.mu.Unlock()

	w.logger.Info("quota errors reset", "reset", n, "resumed", wasPaused)
	if wasPaused {
		w.notify(EventResumed, "quota_reset")
	}
	return n, wasPaused, nil
}

// autoCheckDue возвращает true на первом тике и далее на каждом checkEvery-м.
func (w *Worker) autoCheckDue() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	due := w.checkDue || w.sinceCheck >= w.checkEvery
	if due {
		w.checkDue = false
		w.sinceCheck = 0
	}
	w.sinceCheck++
	return due
}

// setActiveState переключает Running ↔ Draining. Возвращает true, если состояние изменилось.
func (w *Worker) setActiveState(to State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == to || !w.state.IsActive() {
		return false
	}
	if err := w.transitionLocked(to); err != nil {
		return false
	}
	return true
}

// isUnauthorized проверяет, что удалённый вызов отклонён с 401.
func isUnauthorized(err error) bool {
	var remote classify.RemoteError
	return errors.As(err, &remote) && remote.StatusCode() == 401
}
