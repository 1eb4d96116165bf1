package worker

import (
	"errors"
	"fmt"

	"github.com/shaiso/Bulksub/internal/classify"
	"github.com/shaiso/Bulksub/internal/domain"
)

// Ошибки воркера.
var (
	// ErrRunCompleted — run уже завершён, команда неприменима.
	ErrRunCompleted = errors.New("run is completed")

	// ErrInvalidTransition — переход между состояниями запрещён.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)

// credentialError — credential не получен. Классифицируется как AUTH.
type credentialError struct {
	err error
}

func (e *credentialError) Error() string     { return "credential: " + e.err.Error() }
func (e *credentialError) Unwrap() error     { return e.err }
func (e *credentialError) StatusCode() int   { return 401 }
func (e *credentialError) ErrorCode() string { return "401" }

// credentialFailure оборачивает ошибку получения credential.
// Сетевые ошибки сохраняют свою классификацию (NETWORK), остальные становятся AUTH.
func credentialFailure(err error) error {
	if classify.ClassifyError(err).Tag == domain.ErrorTagNetwork {
		return fmt.Errorf("credential: %w", err)
	}
	return &credentialError{err: err}
}
