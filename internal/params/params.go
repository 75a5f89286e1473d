// internal/params/params.go
package params

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// BlobSize is the size of the persisted parameter record.
// Layout is written by the provisioning tool and MUST NOT change.
const BlobSize = 14

// ---- BLOB OFFSETS ----

const (
	offOscillatorCalibration = 0
	offSensorSlope           = 1
	offSensorOffset          = 2
	offAlarmHigh2            = 3
	offAlarmLow2             = 4
	offMarginHigh2           = 5
	offMarginLow2            = 6
	offBattery8              = 7 // 5 consecutive breakpoints
	offReadErrorRetry8       = 12
	offReadInterval8         = 13
)

// NoOscillatorCalibration keeps the factory oscillator value.
const NoOscillatorCalibration = 0xFF

// BatteryLevels is the number of battery breakpoints.
const BatteryLevels = 5

// Params is the calibration record, loaded once at boot.
// Fields keep the scaled on-blob units: __2 fields are mg/dL halved,
// __8 fields are divided by 8.
type Params struct {
	OscillatorCalibration uint8
	SensorSlope           uint8 // slope * 1000
	SensorOffset          int8  // mg/dL

	AlarmHigh2  uint8
	AlarmLow2   uint8
	MarginHigh2 uint8
	MarginLow2  uint8

	// Battery8[0] is the "battery low" breakpoint, Battery8[4] "battery full".
	Battery8 [BatteryLevels]uint8

	ReadErrorRetry8 uint8
	ReadInterval8   uint8
}

// Default mirrors the values shipped on the prototype boards.
func Default() Params {
	return Params{
		OscillatorCalibration: 0x46,
		SensorSlope:           130,
		SensorOffset:          -20,
		AlarmHigh2:            250 >> 1,
		AlarmLow2:             80 >> 1,
		MarginHigh2:           70 >> 1,
		MarginLow2:            70 >> 1,
		Battery8:              [BatteryLevels]uint8{1200 >> 3, 1100 >> 3, 1000 >> 3, 900 >> 3, 800 >> 3},
		ReadErrorRetry8:       4,
		ReadInterval8:         37,
	}
}

// Decode copies a blob offset-for-offset into Params.
func Decode(blob []byte) (Params, error) {
	if len(blob) < BlobSize {
		return Params{}, fmt.Errorf("params: blob too short: got=%d want=%d", len(blob), BlobSize)
	}

	var p Params
	p.OscillatorCalibration = blob[offOscillatorCalibration]
	p.SensorSlope = blob[offSensorSlope]
	p.SensorOffset = int8(blob[offSensorOffset])
	p.AlarmHigh2 = blob[offAlarmHigh2]
	p.AlarmLow2 = blob[offAlarmLow2]
	p.MarginHigh2 = blob[offMarginHigh2]
	p.MarginLow2 = blob[offMarginLow2]
	copy(p.Battery8[:], blob[offBattery8:offBattery8+BatteryLevels])
	p.ReadErrorRetry8 = blob[offReadErrorRetry8]
	p.ReadInterval8 = blob[offReadInterval8]

	return p, p.validate()
}

// Encode is the inverse of Decode.
func (p Params) Encode() []byte {
	blob := make([]byte, BlobSize)
	blob[offOscillatorCalibration] = p.OscillatorCalibration
	blob[offSensorSlope] = p.SensorSlope
	blob[offSensorOffset] = byte(p.SensorOffset)
	blob[offAlarmHigh2] = p.AlarmHigh2
	blob[offAlarmLow2] = p.AlarmLow2
	blob[offMarginHigh2] = p.MarginHigh2
	blob[offMarginLow2] = p.MarginLow2
	copy(blob[offBattery8:], p.Battery8[:])
	blob[offReadErrorRetry8] = p.ReadErrorRetry8
	blob[offReadInterval8] = p.ReadInterval8
	return blob
}

// LoadFile reads a blob produced by the provisioning tool.
func LoadFile(path string) (Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("params: read %s: %w", path, err)
	}
	return Decode(b)
}

func (p Params) validate() error {
	if p.AlarmLow2 >= p.AlarmHigh2 {
		return fmt.Errorf("params: alarm_low (%d) must be below alarm_high (%d)", p.AlarmLow2, p.AlarmHigh2)
	}
	if p.ReadInterval8 == 0 {
		return errors.New("params: read_interval must be > 0")
	}
	return nil
}

// ReadErrorRetryMs is the wait after a failed scan.
func (p Params) ReadErrorRetryMs() int32 {
	return 8000 * int32(p.ReadErrorRetry8)
}

// ReadIntervalMs is the wait after a successful scan without alarm.
func (p Params) ReadIntervalMs() int32 {
	return 8000 * int32(p.ReadInterval8)
}

// ReadInterval is ReadIntervalMs as a Duration, for logs.
func (p Params) ReadInterval() time.Duration {
	return time.Duration(p.ReadIntervalMs()) * time.Millisecond
}

// OscillatorOverride reports the calibration byte to apply, if any.
func (p Params) OscillatorOverride() (uint8, bool) {
	if p.OscillatorCalibration == NoOscillatorCalibration {
		return 0, false
	}
	return p.OscillatorCalibration, true
}
