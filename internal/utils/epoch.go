package utils

import "time"

// Timestamps are stored and transmitted as float seconds since the Unix
// epoch. These helpers are the single conversion point.

func NowEpoch() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func FromEpoch(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

func ToEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// EpochAge returns how long ago the given epoch timestamp was. Zero or
// negative timestamps are treated as infinitely old.
func EpochAge(ts float64) time.Duration {
	if ts <= 0 {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(FromEpoch(ts))
}
