// Package cli реализует инструмент командной строки Bulksub.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Bulksub API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Bulksub API. Инкапсулирует HTTP-запросы,
// загрузку CSV (multipart), парсинг ответов (DataResponse, ListResponse,
// ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	runs, err := client.ListImports(cli.ListImportsOpts{Status: "RUNNING"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию, время и числа через go-humanize
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
//
// ## Commands
//
//   - import: list, create, show, start, pause, retry, auto-resume, watch
//   - auth: status, login
//
// Каждая группа создаётся через фабричную функцию (NewImportCmd, NewAuthCmd),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
