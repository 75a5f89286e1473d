// internal/poller/types.go
package poller

import (
	"github.com/tamzrod/glucoguard/internal/alarm"
	"github.com/tamzrod/glucoguard/internal/cache"
	"github.com/tamzrod/glucoguard/internal/params"
)

// Config is the minimal runtime config the poller needs.
type Config struct {
	Params params.Params

	// BeeperDisabled mutes every beep pattern and skips its time.
	BeeperDisabled bool
}

// DeviceState is everything that survives from one pass to the next.
// It is owned by the control loop.
type DeviceState struct {
	Pass    uint16
	Alarm   alarm.State
	Battery uint16 // last charge time

	LastAverage uint8
	LastErr     error
}

// PollResult is a snapshot produced by one pass.
type PollResult struct {
	Pass    uint16
	Status  alarm.Status
	Battery uint16

	// Average is the trimmed mean, 0 when the scan failed.
	Average  uint8
	Decision alarm.Decision

	// RawErrorCode is the coded scan error, 0 means success.
	RawErrorCode uint16
	FailedBlock  uint8

	Delta cache.Delta

	// WaitMs is how long the loop sleeps before the next pass.
	WaitMs int32

	Err error // non-nil means the scan failed
}
