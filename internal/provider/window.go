package provider

import "time"

// windowMonths is the fixed forward horizon of every sync.
const windowMonths = 3

// Window returns the sync interval [now, now + 3 calendar months).
func Window(now time.Time) (time.Time, time.Time) {
	return now, now.AddDate(0, windowMonths, 0)
}
