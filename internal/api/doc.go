// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go        — Handler с DI (хранилище, supervisor, OAuth provider, logger)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (logging, recovery)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - dto.go            — Data Transfer Objects (request/response)
//   - import_handler.go — обработчики для /imports
//   - auth_handler.go   — OAuth flow и статус авторизации
//
// Чтение статуса идёт напрямую из хранилища и не блокирует воркеры.
package api
