package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//
// Пауза не отражается в статусе run: run на паузе остаётся RUNNING,
// флаг паузы живёт только в памяти воркера.
type RunStatus string

const (
	// RunStatusPending — run создан, items загружены, обработка не начата.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — воркер запущен (возможно, на паузе).
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted — не осталось ни pending, ни retryable items.
	RunStatusCompleted RunStatus = "COMPLETED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted
}

// ItemStatus — статус отдельного item.
//
// Жизненный цикл:
//
//	PENDING → SUCCESS
//	        ↘ ERROR (→ PENDING только через сброс quota-ошибок)
type ItemStatus string

const (
	// ItemStatusPending — item ожидает обработки.
	ItemStatusPending ItemStatus = "PENDING"

	// ItemStatusSuccess — подписка оформлена.
	ItemStatusSuccess ItemStatus = "SUCCESS"

	// ItemStatusError — последняя попытка завершилась ошибкой.
	ItemStatusError ItemStatus = "ERROR"
)

// ErrorTag — категория ошибки удалённого вызова.
type ErrorTag string

const (
	// ErrorTagQuota — исчерпана квота или сработал rate limit.
	ErrorTagQuota ErrorTag = "QUOTA"

	// ErrorTagAuth — credential отклонён.
	ErrorTagAuth ErrorTag = "AUTH"

	// ErrorTagNetwork — сбой транспорта (reset, timeout, DNS).
	ErrorTagNetwork ErrorTag = "NETWORK"

	// ErrorTagPermanent — запрос отклонён окончательно (400, 404, 5xx).
	ErrorTagPermanent ErrorTag = "PERMANENT"

	// ErrorTagUnknown — не удалось классифицировать.
	ErrorTagUnknown ErrorTag = "UNKNOWN"
)

// RetryableTags — теги ошибок, после которых item может быть обработан повторно.
var RetryableTags = []ErrorTag{ErrorTagQuota, ErrorTagNetwork, ErrorTagAuth}

// IsRetryable возвращает true для QUOTA, NETWORK и AUTH.
func (t ErrorTag) IsRetryable() bool {
	switch t {
	case ErrorTagQuota, ErrorTagNetwork, ErrorTagAuth:
		return true
	default:
		return false
	}
}

// ParseErrorTag парсит строку в ErrorTag. Неизвестные значения → UNKNOWN.
func ParseErrorTag(s string) ErrorTag {
	switch s {
	case "QUOTA":
		return ErrorTagQuota
	case "AUTH":
		return ErrorTagAuth
	case "NETWORK":
		return ErrorTagNetwork
	case "PERMANENT":
		return ErrorTagPermanent
	default:
		return ErrorTagUnknown
	}
}
