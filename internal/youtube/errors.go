package youtube

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrNoToken — Subscribe вызван без токена.
var ErrNoToken = errors.New("youtube: no access token")

// APIError — ответ API со статусом не 2xx.
type APIError struct {
	// Status — HTTP статус ответа.
	Status int

	// Code — числовой код из тела ответа ("error.code"). 0, если тело не разобрано.
	Code int

	// Reason — причина первой ошибки ("error.errors[0].reason"), например quotaExceeded.
	Reason string

	// Message — сообщение ("error.message") или сырое тело ответа.
	Message string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "youtube: HTTP %d", e.Status)
	if e.Reason != "" {
		b.WriteString(" ")
		b.WriteString(e.Reason)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// StatusCode возвращает HTTP статус.
func (e *APIError) StatusCode() int {
	return e.Status
}

// ErrorCode возвращает код ошибки строкой. Если тело не содержало кода, берётся статус.
func (e *APIError) ErrorCode() string {
	if e.Code != 0 {
		return strconv.Itoa(e.Code)
	}
	return strconv.Itoa(e.Status)
}

// googleErrorBody — формат ошибки Google API.
type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// parseAPIError строит APIError из статуса и тела ответа.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var parsed googleErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Code != 0 {
		apiErr.Code = parsed.Error.Code
		apiErr.Message = parsed.Error.Message
		if len(parsed.Error.Errors) > 0 {
			apiErr.Reason = parsed.Error.Errors[0].Reason
			if apiErr.Message == "" {
				apiErr.Message = parsed.Error.Errors[0].Message
			}
		}
		return apiErr
	}

	apiErr.Message = truncate(strings.TrimSpace(string(body)), 200)
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// truncate обрезает строку до maxLen байт по границе руны.
// Невалидные UTF-8 последовательности заменяются на U+FFFD.
func truncate(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
