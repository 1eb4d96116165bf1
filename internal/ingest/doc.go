// Package ingest превращает входные данные пользователя в список каналов для run.
//
// Структура:
//   - extract.go — извлечение канонического ID канала из строки
//   - csv.go     — разбор CSV: определение колонок по заголовкам, дедупликация
//   - entries.go — нормализация JSON-записей
//   - errors.go  — ошибки разбора
//
// Пакет не выполняет I/O кроме чтения переданного io.Reader.
// Результат — упорядоченный список domain.Entry без дубликатов по ChannelID.
package ingest
