// Package youtube содержит клиент YouTube Data API v3 для оформления подписок.
//
// Клиент выполняет ровно один HTTP-запрос на вызов и не делает retry:
// повтор после 401 и классификация ошибок — ответственность воркера.
//
// Структура:
//   - client.go — Client.Subscribe
//   - errors.go — APIError (разбор тела ошибки Google API)
//   - quota.go  — оценка расхода дневной квоты
package youtube
