package account

import "time"

// Clock abstracts wall-clock time so selection math and tests never call
// time.Now()/time.Sleep() directly — this lets tests advance 30s/60s/120s
// windows instantly instead of actually sleeping (TESTABLE PROPERTIES).
type Clock interface {
	NowMs() int64
}

// SystemClock is the Clock backed by the real wall clock.
type SystemClock struct{}

// NowMs returns the current time as epoch milliseconds.
func (SystemClock) NowMs() int64 {
	return time.Now().UnixMilli()
}
