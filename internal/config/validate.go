// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/glucoguard/internal/telegram"
	"github.com/tamzrod/glucoguard/internal/transport"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil || (cfg.Device == nil && cfg.Bridge == nil) {
		return errors.New("config: neither device nor bridge section present")
	}

	if cfg.Device != nil {
		if err := validateDevice(cfg.Device); err != nil {
			return fmt.Errorf("device: %w", err)
		}
	}
	if cfg.Bridge != nil {
		if err := validateBridge(cfg.Bridge); err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
	}
	return nil
}

func validateDevice(d *DeviceConfig) error {
	v, err := transport.ParseVariant(d.Variant)
	if err != nil {
		return err
	}

	if _, err := telegram.ParsePolicy(d.HandshakePolicy); err != nil {
		return err
	}

	// the debug variant keeps no cache, so any store kind is accepted there
	if v.Cache() {
		switch d.Store.Kind {
		case "", "memory":
		case "bolt":
			if d.Store.Path == "" {
				return errors.New("store: bolt requires path")
			}
		default:
			return fmt.Errorf("store: unknown kind %q (allowed: memory, bolt)", d.Store.Kind)
		}
	}

	if v.Radio() && d.Serial.Port == "" {
		return fmt.Errorf("serial: variant %s requires port", v)
	}
	if err := validateSerial(d.Serial); err != nil {
		return err
	}

	if d.SPI.Hz < 0 {
		return errors.New("spi: hz must be >= 0")
	}

	return validateLog(d.Log)
}

func validateBridge(b *BridgeConfig) error {
	if b.Serial.Port == "" {
		return errors.New("serial: port required")
	}
	if err := validateSerial(b.Serial); err != nil {
		return err
	}

	if b.StaleAfterSec < 0 {
		return errors.New("stale_after_sec must be >= 0")
	}

	if b.MQTT == nil && b.Modbus == nil {
		return errors.New("at least one of mqtt or modbus is required")
	}

	if m := b.MQTT; m != nil {
		if m.Broker == "" {
			return errors.New("mqtt: broker required")
		}
		if m.QoS > 2 {
			return fmt.Errorf("mqtt: qos %d out of range", m.QoS)
		}
		if strings.ContainsAny(m.Topic, "+#") {
			return fmt.Errorf("mqtt: topic %q must not contain wildcards", m.Topic)
		}
	}

	if m := b.Modbus; m != nil {
		if m.Endpoint == "" {
			return errors.New("modbus: endpoint required")
		}
		if m.TimeoutMs < 0 {
			return errors.New("modbus: timeout_ms must be >= 0")
		}
		for i := 0; i < len(m.DeviceName); i++ {
			if m.DeviceName[i] > 0x7F {
				return errors.New("modbus: device_name must contain ASCII characters only")
			}
		}
	}

	return validateLog(b.Log)
}

func validateSerial(s SerialConfig) error {
	if s.BaudRate < 0 {
		return errors.New("serial: baud_rate must be >= 0")
	}
	if s.TimeoutMs < 0 {
		return errors.New("serial: timeout_ms must be >= 0")
	}
	return nil
}

func validateLog(l LogConfig) error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", l.Format)
	}
	return nil
}
