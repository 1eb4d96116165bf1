// Package scheduler — периодический сброс QUOTA ошибок.
//
// Дневная квота YouTube Data API восстанавливается в полночь по
// тихоокеанскому времени. Воркер на паузе проверяет квоту сам
// (таймер quota recheck), но только если с тех пор была успешная подписка.
// Scheduler по cron-выражению сбрасывает QUOTA items во всех RUNNING runs,
// включая runs без живого воркера. Сбрасываются все ошибки, записанные до
// полуночи в Timezone, даже если их cool-down ещё не истёк.
//
// Структура:
//   - scheduler.go — цикл Run и одиночный Tick
//   - cron.go      — парсинг cron-выражений, timezone и момент сброса квоты
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Sweeper:  supervisor,
//	    CronExpr: "5 0 * * *",
//	    Timezone: "America/Los_Angeles",
//	    Logger:   logger,
//	})
//	go sched.Run(ctx)
package scheduler
