package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxErrorMessageLen — максимальная длина сохраняемого сообщения об ошибке (в символах).
const MaxErrorMessageLen = 1000

// Item — один канал внутри run.
//
// Item создаётся при загрузке списка и обрабатывается воркером run.
// ChannelID уникален в пределах run (дубликаты отбрасываются при загрузке).
type Item struct {
	// ID — уникальный идентификатор item.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// ChannelID — канонический идентификатор канала (UC...).
	ChannelID string `json:"channel_id"`

	// Title — название канала из исходного файла (опционально).
	Title string `json:"title,omitempty"`

	// URL — исходная ссылка на канал (опционально).
	URL string `json:"url,omitempty"`

	// Position — порядковый номер во входном файле; разрешает равенство CreatedAt.
	Position int `json:"position"`

	// Status — текущий статус item.
	Status ItemStatus `json:"status"`

	// Attempts — количество выполненных попыток.
	Attempts int `json:"attempts"`

	// ErrorTag — категория последней ошибки. Nil для PENDING без ошибок и SUCCESS.
	ErrorTag *ErrorTag `json:"error_tag,omitempty"`

	// ErrorMessage — текст последней ошибки (обрезан до MaxErrorMessageLen).
	ErrorMessage *string `json:"error_message,omitempty"`

	// LastErrorAt — время последней ошибки.
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`

	// CreatedAt — время создания; определяет порядок обработки (FIFO).
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry — входная запись для создания item.
type Entry struct {
	ChannelID string `json:"channel_id"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
}

// NewItem создаёт PENDING item для run.
func NewItem(runID uuid.UUID, e Entry, pos int, at time.Time) *Item {
	return &Item{
		ID:        uuid.New(),
		RunID:     runID,
		ChannelID: e.ChannelID,
		Title:     e.Title,
		URL:       e.URL,
		Position:  pos,
		Status:    ItemStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// MarkSuccess переводит item в SUCCESS и очищает поля ошибки.
func (i *Item) MarkSuccess(at time.Time) {
	i.Status = ItemStatusSuccess
	i.Attempts++
	i.ErrorTag = nil
	i.ErrorMessage = nil
	i.LastErrorAt = nil
	i.UpdatedAt = at
}

// MarkError переводит item в ERROR с тегом и сообщением.
func (i *Item) MarkError(tag ErrorTag, msg string, at time.Time) {
	msg = TruncateMessage(msg)
	i.Status = ItemStatusError
	i.Attempts++
	i.ErrorTag = &tag
	i.ErrorMessage = &msg
	i.LastErrorAt = &at
	i.UpdatedAt = at
}

// ResetForRetry возвращает item в PENDING после quota-ошибки.
// Сообщение об ошибке сохраняется для истории, Attempts не сбрасывается.
func (i *Item) ResetForRetry(at time.Time) {
	i.Status = ItemStatusPending
	i.ErrorTag = nil
	i.LastErrorAt = nil
	i.UpdatedAt = at
}

// HasTag проверяет тег последней ошибки.
func (i *Item) HasTag(tag ErrorTag) bool {
	return i.ErrorTag != nil && *i.ErrorTag == tag
}

// TruncateMessage обрезает сообщение до MaxErrorMessageLen символов.
// Результат — валидный UTF-8 без NUL байтов: иначе PostgreSQL отклонит запись.
func TruncateMessage(msg string) string {
	msg = strings.ReplaceAll(strings.ToValidUTF8(msg, "\uFFFD"), "\x00", "")
	if utf8.RuneCountInString(msg) <= MaxErrorMessageLen {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxErrorMessageLen])
}

// ItemCounts — количество items run по статусам и тегам ошибок.
type ItemCounts struct {
	Pending   int `json:"pending"`
	Success   int `json:"success"`
	Quota     int `json:"quota"`
	Network   int `json:"network"`
	Auth      int `json:"auth"`
	Permanent int `json:"permanent"`
	Unknown   int `json:"unknown"`
}

// Retryable возвращает количество ERROR items с retryable тегом.
func (c ItemCounts) Retryable() int {
	return c.Quota + c.Network + c.Auth
}

// Add учитывает item в счётчиках.
func (c *ItemCounts) Add(item *Item) {
	switch item.Status {
	case ItemStatusPending:
		c.Pending++
	case ItemStatusSuccess:
		c.Success++
	case ItemStatusError:
		tag := ErrorTagUnknown
		if item.ErrorTag != nil {
			tag = *item.ErrorTag
		}
		c.AddTag(tag, 1)
	}
}

// AddTag увеличивает счётчик для тега ошибки.
func (c *ItemCounts) AddTag(tag ErrorTag, n int) {
	switch tag {
	case ErrorTagQuota:
		c.Quota += n
	case ErrorTagNetwork:
		c.Network += n
	case ErrorTagAuth:
		c.Auth += n
	case ErrorTagPermanent:
		c.Permanent += n
	default:
		c.Unknown += n
	}
}
