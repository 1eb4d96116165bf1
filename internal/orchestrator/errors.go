package orchestrator

import "errors"

// Ошибки supervisor'а.
var (
	// ErrRunNotActive — для run нет живого воркера.
	ErrRunNotActive = errors.New("run has no active worker")

	// ErrRunLeased — run обрабатывается другим процессом.
	ErrRunLeased = errors.New("run is leased by another process")

	// ErrSupervisorStopped — supervisor остановлен.
	ErrSupervisorStopped = errors.New("supervisor stopped")
)
