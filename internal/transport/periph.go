// internal/transport/periph.go
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Reader register access bits (SPI address byte).
const (
	regRead       = 0x40
	regContinuous = 0x20
	regIRQStatus  = 0x0C
)

var hostInit sync.Once
var hostInitErr error

func initHost() error {
	hostInit.Do(func() {
		_, hostInitErr = host.Init()
	})
	return hostInitErr
}

// ---- SPI ----

// PeriphSPI talks to the RFID reader through a Linux SPI device.
type PeriphSPI struct {
	port spi.PortCloser
	conn spi.Conn
}

// OpenSPI opens the named SPI port ("" picks the first one).
// The reader samples on the falling clock edge, hence Mode1.
func OpenSPI(name string, hz int64) (*PeriphSPI, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("transport spi: host init: %w", err)
	}
	if hz <= 0 {
		hz = 2_000_000
	}

	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("transport spi: open %q: %w", name, err)
	}
	c, err := p.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode1, 8)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("transport spi: connect %q: %w", name, err)
	}
	return &PeriphSPI{port: p, conn: c}, nil
}

// Exchange clocks out cmd followed by outLen-1 filler bytes and returns the
// outLen bytes received from the last command byte on. The first returned
// byte is therefore the reader's dummy.
func (s *PeriphSPI) Exchange(cmd []byte, outLen int) ([]byte, error) {
	if len(cmd) == 0 {
		return nil, errors.New("transport spi: empty command")
	}
	fill := 0
	if outLen > 1 {
		fill = outLen - 1
	}

	w := make([]byte, len(cmd)+fill)
	copy(w, cmd)
	r := make([]byte, len(w))

	if err := s.conn.Tx(w, r); err != nil {
		return nil, fmt.Errorf("transport spi: tx: %w", err)
	}
	if outLen <= 0 {
		return nil, nil
	}
	return r[len(cmd)-1:], nil
}

// ReadRegister reads one register in single-address mode.
func (s *PeriphSPI) ReadRegister(addr uint8) (uint8, error) {
	r, err := s.Exchange([]byte{addr&0x1F | regRead}, 2)
	if err != nil {
		return 0, err
	}
	return r[1], nil
}

// ReadInterruptStatus reads and thereby clears the IRQ status register.
// The reader needs a continuous read with one dummy byte for this register.
func (s *PeriphSPI) ReadInterruptStatus() (uint8, error) {
	r, err := s.Exchange([]byte{regIRQStatus | regRead | regContinuous}, 3)
	if err != nil {
		return 0, err
	}
	return r[1], nil
}

// Close releases the SPI port.
func (s *PeriphSPI) Close() error {
	if s == nil || s.port == nil {
		return nil
	}
	return s.port.Close()
}

// ---- GPIO ----

// PinConfig names the GPIO lines of the board.
type PinConfig struct {
	Green      string
	Red        string
	Beeper     string // active low
	RadioPower string // active low
}

// PeriphPins drives LEDs, beeper and radio supply through GPIO.
type PeriphPins struct {
	green, red, beeper, radio gpio.PinIO
	log                       *slog.Logger
}

// OpenPins resolves the configured pin names.
func OpenPins(cfg PinConfig, log *slog.Logger) (*PeriphPins, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("transport gpio: host init: %w", err)
	}

	lookup := func(role, name string) (gpio.PinIO, error) {
		if name == "" {
			return nil, nil
		}
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("transport gpio: %s pin %q not found", role, name)
		}
		return p, nil
	}

	var pp PeriphPins
	var err error
	if pp.green, err = lookup("green", cfg.Green); err != nil {
		return nil, err
	}
	if pp.red, err = lookup("red", cfg.Red); err != nil {
		return nil, err
	}
	if pp.beeper, err = lookup("beeper", cfg.Beeper); err != nil {
		return nil, err
	}
	if pp.radio, err = lookup("radio_power", cfg.RadioPower); err != nil {
		return nil, err
	}
	pp.log = log

	// safe idle levels: LEDs off, beeper off, radio unpowered
	pp.SetGreen(false)
	pp.SetRed(false)
	pp.SetTone(false)
	pp.SetRadioPower(false)
	return &pp, nil
}

func (p *PeriphPins) drive(pin gpio.PinIO, level gpio.Level) {
	if pin == nil {
		return
	}
	if err := pin.Out(level); err != nil && p.log != nil {
		p.log.Warn("gpio write failed", "pin", pin.Name(), "err", err)
	}
}

func (p *PeriphPins) SetGreen(on bool) { p.drive(p.green, gpio.Level(on)) }
func (p *PeriphPins) SetRed(on bool)   { p.drive(p.red, gpio.Level(on)) }
func (p *PeriphPins) SetTone(on bool)  { p.drive(p.beeper, gpio.Level(!on)) }

func (p *PeriphPins) SetRadioPower(on bool) { p.drive(p.radio, gpio.Level(!on)) }

// ---- BATTERY ----

// FixedBattery reports a constant charge time. Hosts without the comparator
// circuit use it so the power-on beeps still work.
type FixedBattery uint16

func (b FixedBattery) ChargeTime() uint16 { return uint16(b) }
