package ingest

import "errors"

// Ошибки разбора входных данных.
var (
	// ErrEmptyCSV — CSV не содержит строк с данными.
	ErrEmptyCSV = errors.New("csv is empty")

	// ErrNoIDColumn — не найдено ни колонки с ID канала, ни колонки с URL.
	ErrNoIDColumn = errors.New("no channel id or url column found")

	// ErrInvalidCSV — CSV не удалось разобрать.
	ErrInvalidCSV = errors.New("invalid csv")

	// ErrNoEntries — после нормализации не осталось ни одного канала.
	ErrNoEntries = errors.New("no valid channel entries")
)
