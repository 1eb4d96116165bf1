// Package classify сводит ошибку удалённого вызова к одному тегу domain.ErrorTag.
//
// Правила применяются по порядку, срабатывает первое:
//
//  1. QUOTA     — статус 403/429, код "403"/"429" или сообщение содержит "quota"/"exceeded"
//  2. AUTH      — статус 401 или код "401"
//  3. NETWORK   — код ECONNRESET/ETIMEDOUT/ENOTFOUND или сообщение содержит "network"/"timeout"
//  4. PERMANENT — статус 400, 404 или >= 500
//  5. UNKNOWN   — всё остальное
//
// Порядок важен: сообщение о квоте при статусе 5xx классифицируется как QUOTA.
package classify

import (
	"strings"

	"github.com/shaiso/Bulksub/internal/domain"
)

// Коды транспортных ошибок.
const (
	CodeConnReset = "ECONNRESET"
	CodeTimedOut  = "ETIMEDOUT"
	CodeNotFound  = "ENOTFOUND"
)

// Failure — нормализованное описание ошибки.
type Failure struct {
	// StatusCode — HTTP статус ответа. 0, если ответа не было.
	StatusCode int

	// Code — код ошибки: числовой код из тела ответа или код транспорта.
	Code string

	// Message — текст ошибки.
	Message string
}

// Result — результат классификации.
type Result struct {
	Tag       domain.ErrorTag
	Retryable bool
}

// Classify определяет тег ошибки. Функция чистая.
func Classify(f Failure) Result {
	msg := strings.ToLower(f.Message)

	switch {
	case f.StatusCode == 403 || f.StatusCode == 429 ||
		f.Code == "403" || f.Code == "429" ||
		strings.Contains(msg, "quota") || strings.Contains(msg, "exceeded"):
		return Result{Tag: domain.ErrorTagQuota, Retryable: true}

	case f.StatusCode == 401 || f.Code == "401":
		return Result{Tag: domain.ErrorTagAuth, Retryable: true}

	case f.Code == CodeConnReset || f.Code == CodeTimedOut || f.Code == CodeNotFound ||
		strings.Contains(msg, "network") || strings.Contains(msg, "timeout"):
		return Result{Tag: domain.ErrorTagNetwork, Retryable: true}

	case f.StatusCode == 400 || f.StatusCode == 404 || f.StatusCode >= 500:
		return Result{Tag: domain.ErrorTagPermanent, Retryable: false}

	default:
		return Result{Tag: domain.ErrorTagUnknown, Retryable: false}
	}
}
