// Package mq — RabbitMQ транспорт событий и команд управления runs.
//
// Структура:
//   - connection.go — соединение с reconnect
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация событий жизненного цикла и команд
//   - consumer.go   — потребление команд управления
//   - notifier.go   — адаптер worker.Notifier → publisher
//
// Типы сообщений:
//   - run.started, run.paused, run.resumed, run.completed — события воркера
//   - run.control — команда (start, pause, resume, toggle, retry_quota, auto_resume)
//
// Exchanges:
//   - bulksub.runs — события и команды runs
//   - bulksub.dlq  — dead letter для необработанных команд
package mq
