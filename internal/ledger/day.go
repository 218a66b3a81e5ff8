package ledger

import "time"

// TodayOpen возвращает локальную полночь для now в заданной зоне
func TodayOpen(tz string, now time.Time) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SameTradingDay проверяет, лежат ли a и b в одном торговом дне
func SameTradingDay(tz string, a, b time.Time) bool {
	return TodayOpen(tz, a).Equal(TodayOpen(tz, b))
}
