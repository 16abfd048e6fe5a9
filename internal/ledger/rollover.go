package ledger

import "time"

// truncates t to its UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// brings a quota record up to date for today. the daily counter rolls to
// zero once today is past ResetDate, the monthly one when the month changes.
// ResetDate never moves backwards
func Rollover(q Quota, today time.Time) Quota {
	today = Day(today)

	if q.ResetDate.IsZero() {
		q.ResetDate = today
		return q
	}

	reset := Day(q.ResetDate)
	if !today.After(reset) {
		q.ResetDate = reset
		return q
	}

	q.DailyOperations = 0

	if monthStart(today).After(monthStart(reset)) {
		q.MonthlyOperations = 0
	}

	q.ResetDate = today

	return q
}
