// internal/transport/sleep.go
package transport

import "time"

// MaxSleepMs is the longest single sleep the timer can express.
// Longer waits are split by the caller.
const MaxSleepMs = 16000

// HostSleeper sleeps on the host clock.
type HostSleeper struct {
	sleep func(time.Duration)
}

// NewHostSleeper returns a sleeper backed by time.Sleep.
func NewHostSleeper() *HostSleeper {
	return &HostSleeper{sleep: time.Sleep}
}

// SleepMs sleeps at most MaxSleepMs and returns the time slept.
func (h *HostSleeper) SleepMs(ms uint32) uint32 {
	if ms > MaxSleepMs {
		ms = MaxSleepMs
	}
	h.sleep(time.Duration(ms) * time.Millisecond)
	return ms
}

// SleepFull waits ms milliseconds through repeated capped sleeps.
func SleepFull(s Sleeper, ms int32) {
	for ms > 0 {
		slept := s.SleepMs(uint32(ms))
		if slept == 0 {
			return
		}
		ms -= int32(slept)
	}
}
