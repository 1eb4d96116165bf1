// Package telemetry — логирование и метрики bulksub.
//
// logging.go настраивает slog: JSON в production, tint при LOG_FORMAT=text.
// Логгер запроса передаётся через контекст (WithLogger / FromContext),
// к нему добавляются run_id и item_id.
//
// metrics.go объявляет Prometheus метрики воркеров (попытки, паузы,
// сброс квоты), supervisor'а (активные воркеры, команды из очереди)
// и HTTP API. bulksub-api отдаёт их на /metrics.
package telemetry
