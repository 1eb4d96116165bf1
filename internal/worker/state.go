package worker

// State — состояние воркера.
type State string

const (
	// StateIdle — воркер создан, но не запущен.
	StateIdle State = "IDLE"

	// StateRunning — тики выполняются с pacing delay.
	StateRunning State = "RUNNING"

	// StatePaused — тики не планируются (ручная пауза или QUOTA).
	StatePaused State = "PAUSED"

	// StateDraining — PENDING items нет, но есть retryable ошибки;
	// тики выполняются с увеличенной задержкой.
	StateDraining State = "DRAINING"

	// StateCompleted — run завершён, таймеры остановлены.
	StateCompleted State = "COMPLETED"
)

// transitions — допустимые переходы.
var transitions = map[State][]State{
	StateIdle:      {StateRunning},
	StateRunning:   {StateRunning, StatePaused, StateDraining, StateCompleted},
	StatePaused:    {StateRunning},
	StateDraining:  {StateRunning, StatePaused, StateCompleted},
	StateCompleted: nil,
}

// canTransition проверяет, допустим ли переход from → to.
func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsActive возвращает true для состояний, в которых планируются тики.
func (s State) IsActive() bool {
	return s == StateRunning || s == StateDraining
}
