// internal/status/tracker.go
package status

import (
	"encoding/binary"
	"time"

	"github.com/tamzrod/glucoguard/internal/alarm"
	"github.com/tamzrod/glucoguard/internal/telegram"
)

// Tracker turns the glucose reports of one transmitter into snapshots.
// It keeps the only memory the status block needs: when the error began,
// how many reports arrived and when the last one did.
type Tracker struct {
	staleAfter time.Duration

	last       Snapshot
	lastAt     time.Time
	errorSince time.Time
	inError    bool
}

// NewTracker returns a tracker that reports HealthStale once no report has
// arrived for staleAfter. Zero disables staleness.
func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{staleAfter: staleAfter}
}

// HealthOf maps a board status byte to a health code.
func HealthOf(boardStatus uint8) uint16 {
	switch alarm.Status(boardStatus) {
	case alarm.StatusRunning, alarm.StatusAboveInitial, alarm.StatusBelowInitial:
		return HealthOK
	case alarm.StatusRFIDError:
		return HealthError
	default:
		return HealthUnknown
	}
}

// Observe records one report from sender received at at.
func (t *Tracker) Observe(sender [4]byte, r telegram.GlucoseReport, at time.Time) Snapshot {
	s := Snapshot{
		Health:      HealthOf(r.BoardStatus),
		Glucose:     uint16(r.Glucose) << 1,
		Battery:     r.Battery,
		BoardStatus: uint16(r.BoardStatus),
		Sender:      binary.BigEndian.Uint32(sender[:]),
		Reports:     t.last.Reports + 1,
	}

	if s.Health == HealthError {
		if !t.inError {
			t.inError = true
			t.errorSince = at
		}
		s.LastErrorCode = uint16(r.BoardStatus)
		s.SecondsInError = secondsSince(t.errorSince, at)
	} else {
		t.inError = false
	}

	t.last = s
	t.lastAt = at
	return s
}

// Tick returns a stale snapshot when the transmitter has gone quiet.
// ok is false while reports are still fresh.
func (t *Tracker) Tick(now time.Time) (Snapshot, bool) {
	if t.staleAfter <= 0 || t.lastAt.IsZero() {
		return Snapshot{}, false
	}
	if now.Sub(t.lastAt) < t.staleAfter {
		return Snapshot{}, false
	}

	s := t.last
	s.Health = HealthStale
	if t.inError {
		s.SecondsInError = secondsSince(t.errorSince, now)
	}
	return s, true
}

// seconds_in_error MUST NOT wrap
func secondsSince(from, now time.Time) uint16 {
	d := now.Sub(from) / time.Second
	switch {
	case d < 0:
		return 0
	case d > 65535:
		return 65535
	}
	return uint16(d)
}
