package sweep

import "time"

// The sweep runs on every fourth UTC day, counted in whole days since
// the epoch.
const ScheduleEveryDays = 4

const dayMillis = 86_400_000

// State is the singleton (id=1) sweep bookkeeping row.
type State struct {
	LastSweepUTCDay *int64
	LastSweepAt     *time.Time
	RunCount        int
}

// UTCDay converts a wall-clock instant to its UTC day number.
func UTCDay(t time.Time) int64 {
	return t.UnixMilli() / dayMillis
}

// Scheduled reports whether the given UTC day is a sweep day.
func Scheduled(utcDay int64) bool {
	return utcDay%ScheduleEveryDays == 0
}
