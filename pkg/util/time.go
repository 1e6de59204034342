package util

import "time"

// 1e11 seconds is the year 5138; anything larger is a millisecond timestamp.
const msThreshold = 100_000_000_000

// FromUnix converts a unix timestamp in seconds or milliseconds to UTC time.
// Zero or negative values yield the zero time.
func FromUnix(ts int64) time.Time {
	switch {
	case ts <= 0:
		return time.Time{}
	case ts >= msThreshold:
		return time.UnixMilli(ts).UTC()
	default:
		return time.Unix(ts, 0).UTC()
	}
}
