// internal/alarm/alarm.go
package alarm

import (
	"fmt"

	"github.com/tamzrod/glucoguard/internal/params"
)

// Status is the board status byte carried in every glucose telegram.
// The values are wire-locked.
type Status uint8

const (
	StatusReset        Status = 0
	StatusRFIDError    Status = 3
	StatusBelowInitial Status = 4
	StatusAboveInitial Status = 6
	StatusRunning      Status = 7
)

func (s Status) String() string {
	switch s {
	case StatusReset:
		return "reset"
	case StatusRFIDError:
		return "rfid_error"
	case StatusBelowInitial:
		return "below_initial"
	case StatusAboveInitial:
		return "above_initial"
	case StatusRunning:
		return "running"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Direction of a raised alarm.
type Direction int

const (
	None Direction = iota
	High
	Low
)

func (d Direction) String() string {
	switch d {
	case High:
		return "high"
	case Low:
		return "low"
	default:
		return "none"
	}
}

// Margins widen the nominal thresholds so that the power-on level does not
// alarm. They only ever shrink.
type Margins struct {
	Low  uint8
	High uint8
}

// State is the part of the device state owned by the engine.
// Baseline 0 means no valid pass yet.
type State struct {
	Status   Status
	Baseline uint8
	Margins  Margins
}

// Decision is the outcome of one Update.
type Decision struct {
	Status    Status
	Direction Direction
}

// Alarm reports whether the pass must raise the alarm.
func (d Decision) Alarm() bool { return d.Direction != None }

// Engine holds the nominal thresholds (halved mg/dL).
type Engine struct {
	alarmLow   int
	alarmHigh  int
	marginLow  int
	marginHigh int
}

// NewEngine takes the thresholds from the parameter record.
func NewEngine(p params.Params) Engine {
	return Engine{
		alarmLow:   int(p.AlarmLow2),
		alarmHigh:  int(p.AlarmHigh2),
		marginLow:  int(p.MarginLow2),
		marginHigh: int(p.MarginHigh2),
	}
}

func (e Engine) deltaLow(a int) uint8 {
	return clamp8((e.alarmLow + e.marginLow) - a)
}

func (e Engine) deltaHigh(a int) uint8 {
	return clamp8(a - (e.alarmHigh - e.marginHigh))
}

// Update runs the transition for a successful pass with trimmed average a.
func (e Engine) Update(s *State, a uint8) Decision {
	v := int(a)

	if s.Baseline == 0 {
		s.Baseline = a
		s.Status = StatusRunning
		s.Margins = Margins{Low: e.deltaLow(v), High: e.deltaHigh(v)}
		return Decision{Status: s.Status}
	}

	if a >= s.Baseline {
		s.Status = StatusAboveInitial
		if s.Margins.High > 0 {
			s.Margins.High = min(s.Margins.High, e.deltaHigh(v))
		}
		if v > e.alarmHigh+int(s.Margins.High) {
			return Decision{Status: s.Status, Direction: High}
		}
		return Decision{Status: s.Status}
	}

	s.Status = StatusBelowInitial
	if s.Margins.Low > 0 {
		s.Margins.Low = min(s.Margins.Low, e.deltaLow(v))
	}
	if v < e.alarmLow-int(s.Margins.Low) {
		return Decision{Status: s.Status, Direction: Low}
	}
	return Decision{Status: s.Status}
}

// Fail records a failed pass. Baseline and margins are kept.
func (e Engine) Fail(s *State) {
	s.Status = StatusRFIDError
}

// Thresholds returns the effective low and high alarm levels of s,
// saturated to 8 bits.
func (e Engine) Thresholds(s State) (low, high uint8) {
	return clamp8(e.alarmLow - int(s.Margins.Low)), clamp8(e.alarmHigh + int(s.Margins.High))
}

func clamp8(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 0xFF:
		return 0xFF
	}
	return uint8(v)
}
