package classify

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// RemoteError — ошибка, несущая HTTP статус и код ответа удалённого сервиса.
// Реализуется youtube.APIError.
type RemoteError interface {
	error
	StatusCode() int
	ErrorCode() string
}

// FromError извлекает Failure из произвольной ошибки.
//
// Распознаются:
//   - RemoteError — статус и код из ответа
//   - сброс соединения (ECONNRESET)
//   - DNS: хост не найден (ENOTFOUND)
//   - таймауты net.Error и context.DeadlineExceeded (ETIMEDOUT)
//
// Для остальных ошибок заполняется только Message.
func FromError(err error) Failure {
	if err == nil {
		return Failure{}
	}

	f := Failure{Message: err.Error()}

	var remote RemoteError
	if errors.As(err, &remote) {
		f.StatusCode = remote.StatusCode()
		f.Code = remote.ErrorCode()
		return f
	}

	if errors.Is(err, syscall.ECONNRESET) {
		f.Code = CodeConnReset
		return f
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		f.Code = CodeNotFound
		return f
	}

	// Текст "context deadline exceeded" иначе попал бы под правило QUOTA.
	if errors.Is(err, context.DeadlineExceeded) {
		f.Code = CodeTimedOut
		f.Message = "request timeout (context deadline)"
		return f
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		f.Code = CodeTimedOut
		return f
	}

	return f
}

// ClassifyError — сокращение для Classify(FromError(err)).
func ClassifyError(err error) Result {
	return Classify(FromError(err))
}
