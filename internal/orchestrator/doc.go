// Package orchestrator управляет воркерами runs.
//
// Supervisor отвечает за:
//   - Реестр живых воркеров (run id → worker.Worker)
//   - Маршрутизацию команд start/pause/resume/retry к нужному воркеру
//   - Удаление воркера, когда run завершён
//   - Аренду run в Redis (опционально), чтобы run обрабатывал один процесс
//   - Команды управления из RabbitMQ (опционально)
//
// Реестр живёт только в памяти и не переживает рестарт процесса.
// Состояние runs при этом сохраняется в хранилище; runs, оставшиеся
// RUNNING без воркера, нужно запустить заново командой start.
package orchestrator
