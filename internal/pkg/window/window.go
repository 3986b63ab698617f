// Package window maps wall-clock time to the recurring daily reset
// boundary. The reset instant is 05:00 in a fixed UTC+9 civil calendar:
// a moment before 05:00 JST still belongs to the previous day's window.
package window

import "time"

const resetHour = 5

// jst is the fixed civil calendar used for daily resets.
var jst = time.FixedZone("JST", 9*60*60)

// Start returns the absolute instant the current daily window began.
func Start(now time.Time) time.Time {
	local := now.In(jst)
	year, month, day := local.Date()
	if local.Hour() < resetHour {
		year, month, day = local.AddDate(0, 0, -1).Date()
	}
	return time.Date(year, month, day, resetHour, 0, 0, 0, jst)
}

// CivilDate returns the window's calendar date as YYYY-MM-DD. This is the
// date component of deterministic draw seeds, so seeded content rolls
// over at the same instant as the daily-reading cache.
func CivilDate(now time.Time) string {
	return Start(now).Format("2006-01-02")
}

// Next returns the instant the current window ends.
func Next(now time.Time) time.Time {
	return Start(now).AddDate(0, 0, 1)
}
