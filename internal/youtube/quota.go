package youtube

import "time"

const (
	// SubscribeCost — стоимость subscriptions.insert в единицах квоты.
	SubscribeCost = 50

	// DailyQuota — дневной лимит квоты проекта по умолчанию.
	DailyQuota = 10000
)

// QuotaEstimate — оценка расхода дневной квоты.
type QuotaEstimate struct {
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Exhausted bool      `json:"exhausted"`
	ResetsAt  time.Time `json:"resets_at"`
}

// EstimateQuota оценивает расход квоты по числу успешных подписок за сутки.
//
// Квота сбрасывается в полночь по тихоокеанскому времени.
func EstimateQuota(successes int, now time.Time) QuotaEstimate {
	used := successes * SubscribeCost
	remaining := DailyQuota - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaEstimate{
		Used:      used,
		Remaining: remaining,
		Exhausted: remaining < SubscribeCost,
		ResetsAt:  NextQuotaReset(now),
	}
}

// NextQuotaReset возвращает ближайшую полночь по America/Los_Angeles.
func NextQuotaReset(now time.Time) time.Time {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		loc = time.FixedZone("PST", -8*60*60)
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, 1)
}
