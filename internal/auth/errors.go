package auth

import "errors"

// Ошибки credential provider.
var (
	// ErrUnauthenticated — токен отсутствует, требуется авторизация через /auth.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrRefreshFailed — не удалось обновить access token.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrNoRefreshToken — сохранённый токен не содержит refresh token.
	ErrNoRefreshToken = errors.New("no refresh token stored")
)
