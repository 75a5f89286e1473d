// internal/transport/serial.go
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// ErrNoData is returned by ReadByte when the read timeout expires.
var ErrNoData = errors.New("transport: no data")

// SerialConfig is the UART setup. The radio module expects 57600 8N2.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// DefaultBaudRate matches the radio module's ESP3 interface.
const DefaultBaudRate = 57600

// SerialLine is a byte-at-a-time view of a UART.
// One goroutine may read while another writes.
type SerialLine struct {
	wmu  sync.Mutex
	port io.ReadWriteCloser
	rbuf [1]byte
}

// OpenSerial opens the UART at cfg.Port.
func OpenSerial(cfg SerialConfig) (*SerialLine, error) {
	if cfg.Port == "" {
		return nil, errors.New("transport serial: port required")
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 100 * time.Millisecond
	}

	port, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 2,
		Parity:   "N",
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("transport serial: open %s: %w", cfg.Port, err)
	}
	return NewSerialLine(port), nil
}

// NewSerialLine wraps an already opened port.
func NewSerialLine(port io.ReadWriteCloser) *SerialLine {
	return &SerialLine{port: port}
}

// SendByte writes one byte.
func (s *SerialLine) SendByte(b byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if _, err := s.port.Write([]byte{b}); err != nil {
		return fmt.Errorf("transport serial: write: %w", err)
	}
	return nil
}

// Write sends a whole buffer (debug text, raw frames).
func (s *SerialLine) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.port.Write(p)
}

// ReadByte reads one byte; a port timeout maps to ErrNoData.
func (s *SerialLine) ReadByte() (byte, error) {
	n, err := s.port.Read(s.rbuf[:])
	if err != nil {
		if errors.Is(err, serial.ErrTimeout) {
			return 0, ErrNoData
		}
		return 0, err
	}
	if n == 0 {
		return 0, ErrNoData
	}
	return s.rbuf[0], nil
}

// Close closes the port.
func (s *SerialLine) Close() error {
	if s == nil || s.port == nil {
		return nil
	}
	return s.port.Close()
}
