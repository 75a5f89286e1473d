// internal/transport/transport.go
package transport

import (
	"fmt"
	"strings"
)

// SPI is the byte-oriented exchange with the RFID reader.
// Exchange clocks out cmd and returns outLen bytes, starting with the byte
// received during the last command byte (the reader's dummy).
type SPI interface {
	Exchange(cmd []byte, outLen int) ([]byte, error)
	ReadRegister(addr uint8) (uint8, error)
	ReadInterruptStatus() (uint8, error)
}

// Line is the outgoing side of the serial channel.
type Line interface {
	SendByte(b byte) error
}

// Receiver is the incoming side of the serial channel.
// ReadByte blocks until a byte arrives, the read timeout expires
// (ErrNoData) or the line fails.
type Receiver interface {
	ReadByte() (byte, error)
}

// Sleeper suspends the caller and returns the milliseconds actually slept,
// which may be less than requested.
type Sleeper interface {
	SleepMs(ms uint32) uint32
}

// Battery returns the capacitor charge time used as battery gauge.
// Roughly 800 means full, 1200 means empty.
type Battery interface {
	ChargeTime() uint16
}

// Indicator drives the two status LEDs.
type Indicator interface {
	SetGreen(on bool)
	SetRed(on bool)
}

// Beeper drives the piezo.
type Beeper interface {
	SetTone(on bool)
}

// RadioPower switches the radio module supply.
type RadioPower interface {
	SetRadioPower(on bool)
}

// ---- VARIANTS ----

// Variant selects which capabilities a build of the device carries.
type Variant int

const (
	// VariantDebug logs diagnostics on the serial line; no radio, no cache.
	VariantDebug Variant = iota
	// VariantEnocean drives the radio module on the serial line; cache on.
	VariantEnocean
	// VariantSilent uses no serial line at all; cache on.
	VariantSilent
)

func (v Variant) String() string {
	switch v {
	case VariantDebug:
		return "debug"
	case VariantEnocean:
		return "enocean"
	case VariantSilent:
		return "silent"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Radio reports whether telegrams are transmitted.
func (v Variant) Radio() bool { return v == VariantEnocean }

// Cache reports whether scan results are persisted.
func (v Variant) Cache() bool { return v == VariantEnocean || v == VariantSilent }

// ParseVariant maps a config string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return VariantDebug, nil
	case "enocean":
		return VariantEnocean, nil
	case "silent":
		return VariantSilent, nil
	default:
		return 0, fmt.Errorf("transport: unknown variant %q (allowed: debug, enocean, silent)", s)
	}
}

// ---- CAPABILITY SET ----

// Set is the collection of primitives one hardware variant provides.
// Line/RX/Radio are nil when the variant has no radio.
type Set struct {
	Variant Variant

	SPI     SPI
	Sleep   Sleeper
	Battery Battery
	LEDs    Indicator
	Beeper  Beeper

	Line  Line
	RX    Receiver
	Radio RadioPower
}

// Validate checks that the set carries what its variant needs.
func (s Set) Validate() error {
	if s.SPI == nil {
		return fmt.Errorf("transport: %s: spi required", s.Variant)
	}
	if s.Sleep == nil {
		return fmt.Errorf("transport: %s: sleeper required", s.Variant)
	}
	if s.Battery == nil || s.LEDs == nil || s.Beeper == nil {
		return fmt.Errorf("transport: %s: battery, leds and beeper required", s.Variant)
	}
	if s.Variant.Radio() {
		if s.Line == nil || s.RX == nil || s.Radio == nil {
			return fmt.Errorf("transport: %s: serial line, receiver and radio power required", s.Variant)
		}
	}
	return nil
}
