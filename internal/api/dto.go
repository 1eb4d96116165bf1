package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Bulksub/internal/domain"
	"github.com/shaiso/Bulksub/internal/youtube"
)

// Import DTOs

// CreateImportRequest — JSON альтернатива загрузке CSV.
type CreateImportRequest struct {
	Entries []domain.Entry `json:"entries"`
}

// StartRequest — запрос на запуск run.
type StartRequest struct {
	DelayMs int64 `json:"delay_ms"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID         uuid.UUID        `json:"id"`
	Status     domain.RunStatus `json:"status"`
	Total      int              `json:"total"`
	Processed  int              `json:"processed"`
	Success    int              `json:"success"`
	Error      int              `json:"error"`
	Pending    int              `json:"pending"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Status:     r.Status,
		Total:      r.Total,
		Processed:  r.Processed,
		Success:    r.Success,
		Error:      r.Error,
		Pending:    r.Pending(),
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// ItemResponse — ответ с item.
type ItemResponse struct {
	ID           uuid.UUID         `json:"id"`
	ChannelID    string            `json:"channel_id"`
	Title        string            `json:"title,omitempty"`
	URL          string            `json:"url,omitempty"`
	Status       domain.ItemStatus `json:"status"`
	Attempts     int               `json:"attempts"`
	ErrorTag     *domain.ErrorTag  `json:"error_tag,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	LastErrorAt  *time.Time        `json:"last_error_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ItemFromDomain конвертирует domain.Item в ItemResponse.
func ItemFromDomain(i domain.Item) ItemResponse {
	return ItemResponse{
		ID:           i.ID,
		ChannelID:    i.ChannelID,
		Title:        i.Title,
		URL:          i.URL,
		Status:       i.Status,
		Attempts:     i.Attempts,
		ErrorTag:     i.ErrorTag,
		ErrorMessage: i.ErrorMessage,
		LastErrorAt:  i.LastErrorAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

// RetrySummary — сводка ошибок run.
type RetrySummary struct {
	QuotaErrors     int    `json:"quota_errors"`
	NetworkErrors   int    `json:"network_errors"`
	AuthErrors      int    `json:"auth_errors"`
	PermanentErrors int    `json:"permanent_errors"`
	UnknownErrors   int    `json:"unknown_errors"`
	PendingCount    int    `json:"pending_count"`
	Paused          bool   `json:"paused"`
	WorkerState     string `json:"worker_state,omitempty"`
}

// RetryFromCounts строит RetrySummary.
func RetryFromCounts(c domain.ItemCounts, paused bool) RetrySummary {
	return RetrySummary{
		QuotaErrors:     c.Quota,
		NetworkErrors:   c.Network,
		AuthErrors:      c.Auth,
		PermanentErrors: c.Permanent,
		UnknownErrors:   c.Unknown,
		PendingCount:    c.Pending,
		Paused:          paused,
	}
}

// StatusResponse — статус run для опроса.
type StatusResponse struct {
	Run    RunResponse            `json:"run"`
	Recent []ItemResponse         `json:"recent"`
	Retry  RetrySummary           `json:"retry"`
	Quota  *youtube.QuotaEstimate `json:"quota,omitempty"`
}

// PauseResponse — результат переключения паузы.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// RetryResponse — результат сброса QUOTA ошибок.
type RetryResponse struct {
	Reset int `json:"reset"`
}

// AutoResumeResponse — результат проверки квоты.
type AutoResumeResponse struct {
	Resumed bool `json:"resumed"`
}

// Auth DTOs

// AuthStatusResponse — статус авторизации.
type AuthStatusResponse struct {
	Configured    bool `json:"configured"`
	Authenticated bool `json:"authenticated"`
}
