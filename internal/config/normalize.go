// internal/config/normalize.go
package config

import (
	"strings"

	"github.com/tamzrod/glucoguard/internal/status"
	"github.com/tamzrod/glucoguard/internal/transport"
)

// Defaults applied by Normalize.
const (
	DefaultSerialTimeoutMs = 100
	DefaultModbusTimeoutMs = 1000
	DefaultMQTTTopic       = "glucoguard"
	DefaultMQTTClientID    = "glucoguard-bridge"
	DefaultBatteryTicks    = 900
	DefaultStaleAfterSec   = 900 // three default read intervals
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if d := cfg.Device; d != nil {
		d.Variant = strings.ToLower(strings.TrimSpace(d.Variant))
		if d.Store.Kind == "" {
			d.Store.Kind = "memory"
		}
		if d.HandshakePolicy == "" {
			d.HandshakePolicy = "transmit"
		}
		if d.BatteryTicks == 0 {
			d.BatteryTicks = DefaultBatteryTicks
		}
		normalizeSerial(&d.Serial)
		normalizeLog(&d.Log)
	}

	if b := cfg.Bridge; b != nil {
		normalizeSerial(&b.Serial)
		normalizeLog(&b.Log)
		if b.StaleAfterSec == 0 {
			b.StaleAfterSec = DefaultStaleAfterSec
		}

		if m := b.MQTT; m != nil {
			if m.Topic == "" {
				m.Topic = DefaultMQTTTopic
			}
			m.Topic = strings.TrimRight(m.Topic, "/")
			if m.ClientID == "" {
				m.ClientID = DefaultMQTTClientID
			}
		}

		if m := b.Modbus; m != nil {
			if m.TimeoutMs == 0 {
				m.TimeoutMs = DefaultModbusTimeoutMs
			}
			// ASCII already validated
			if len(m.DeviceName) > status.DeviceNameMaxChars {
				m.DeviceName = m.DeviceName[:status.DeviceNameMaxChars]
			}
		}
	}
}

func normalizeSerial(s *SerialConfig) {
	if s.BaudRate == 0 {
		s.BaudRate = transport.DefaultBaudRate
	}
	if s.TimeoutMs == 0 {
		s.TimeoutMs = DefaultSerialTimeoutMs
	}
}

func normalizeLog(l *LogConfig) {
	l.Level = strings.ToLower(l.Level)
	if l.Level == "" {
		l.Level = "info"
	}
	l.Format = strings.ToLower(l.Format)
	if l.Format == "" {
		l.Format = "text"
	}
}
