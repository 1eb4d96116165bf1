// Package worker реализует обработку одного run.
//
// # Обзор
//
// Worker — однопоточный (в логическом смысле) обработчик items одного run.
// На каждом тике он берёт самый старый PENDING item, получает credential,
// вызывает YouTube Data API, классифицирует ошибку и атомарно записывает
// результат в хранилище, после чего планирует следующий тик через pacing delay.
//
// # Состояния
//
//	Idle ──Start──▶ Running ──QUOTA / Pause──▶ Paused ──Resume / reset──▶ Running
//	                   │ ▲
//	       нет PENDING │ │ появились PENDING
//	                   ▼ │
//	                Draining ──нет retryable──▶ Completed
//
// Переходы проверяются централизованно (canTransition). Completed — финальное
// состояние: все таймеры остановлены, supervisor удаляет worker из реестра.
//
// # Таймеры
//
// Worker владеет двумя таймерами:
//   - pacing — следующий тик (delay или DrainFactor × delay в Draining)
//   - quota recheck — повторяющаяся проверка авто-возобновления (каждые 30 минут на паузе)
//
// Каждое (пере)планирование увеличивает счётчик поколений и останавливает
// предыдущий таймер; сработавший таймер устаревшего поколения ничего не делает.
// tickMu гарантирует не более одной попытки одновременно.
//
// # Авто-возобновление
//
// На первом тике и далее на каждом CheckEvery-м тике (а на паузе — по таймеру
// quota recheck) worker проверяет, была ли за последний SuccessWindow хотя бы
// одна успешная подписка (в любом run аккаунта). Если да, квота считается
// сброшенной: QUOTA items старше CoolDown возвращаются в PENDING, и worker
// на паузе продолжает работу.
//
// # Ошибки
//
// Ошибка удалённого вызова никогда не выходит за пределы тика: она
// классифицируется и записывается в item. Ошибки хранилища логируются,
// тик повторяется через pacing delay. После ответа 401 worker один раз
// принудительно обновляет токен и повторяет вызов.
package worker
