// internal/poller/signal.go
package poller

import "github.com/tamzrod/glucoguard/internal/params"

// LED and beep timing (ms).
const (
	blinkOnMs  = 600
	blinkOffMs = 200

	batteryBeepMs = 200

	errorBeeps    = 3
	errorBeepMs   = 100
	alarmBeeps    = 172
	alarmBeepOnMs = 500
	alarmBeepOff  = 200

	// AlarmRecheckMs is the wait after an alarm pattern.
	AlarmRecheckMs = 2000
)

// BatteryBeeps maps a charge time to the number of power-on beeps.
// Longer charge means a weaker battery: 1 beep is nearly empty, 5 is full.
func BatteryBeeps(chargeTime uint16, p params.Params) int {
	br := uint8(min(chargeTime>>3, 0xFF))
	for i := 0; i < params.BatteryLevels-1; i++ {
		if br >= p.Battery8[i] {
			return i + 1
		}
	}
	return params.BatteryLevels
}

// blink shows the three low bits of status, MSB first: green for 1, red for 0.
func (p *Poller) blink(status uint8) {
	for shift := 2; shift >= 0; shift-- {
		if (status>>shift)&1 == 1 {
			p.set.LEDs.SetGreen(true)
			p.set.Sleep.SleepMs(blinkOnMs)
			p.set.LEDs.SetGreen(false)
		} else {
			p.set.LEDs.SetRed(true)
			p.set.Sleep.SleepMs(blinkOnMs)
			p.set.LEDs.SetRed(false)
		}
		p.set.Sleep.SleepMs(blinkOffMs)
	}
}

func (p *Poller) beep(repeat int, onMs, offMs uint32) {
	if p.cfg.BeeperDisabled {
		return
	}
	for k := 0; k < repeat; k++ {
		p.set.Beeper.SetTone(true)
		p.set.Sleep.SleepMs(onMs)
		p.set.Beeper.SetTone(false)
		p.set.Sleep.SleepMs(offMs)
	}
}
