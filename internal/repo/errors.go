package repo

import "errors"

// Ошибки хранилища. Возвращаются и Store, и MemoryStore.
var (
	// ErrNotFound — run или токен не найден.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — run с таким ID уже сохранён.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — запись item не соответствует ожидаемому статусу
	// (например, повторная запись результата уже обработанного item).
	ErrInvalidState = errors.New("invalid state")
)
