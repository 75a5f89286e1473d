// internal/rfid/errors.go
package rfid

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package matches exactly
// one of them under errors.Is.
var (
	ErrTransport = errors.New("rfid: transport error")
	ErrDecode    = errors.New("rfid: decode error")
)

// Error codes reported on the status surface (last_error_code).
const (
	CodeFifoOverflow     uint16 = 0x0101
	CodeMissingInterrupt uint16 = 0x0102
	CodeBus              uint16 = 0x0103
	CodeIsoError         uint16 = 0x0201
	CodeBadLength        uint16 = 0x0202
)

// ---- TRANSPORT ----

// FifoOverflow means the reader reported more bytes than one block holds.
type FifoOverflow struct {
	Block uint8
	Len   uint8
}

func (e *FifoOverflow) Error() string {
	return fmt.Sprintf("rfid: block %d: fifo length %d > %d", e.Block, e.Len, MaxFIFO)
}
func (e *FifoOverflow) Is(target error) bool { return target == ErrTransport }
func (e *FifoOverflow) Code() uint16         { return CodeFifoOverflow }

// MissingInterrupt means rx or tx completion was not flagged after the settle delay.
type MissingInterrupt struct {
	Block  uint8
	Status uint8
}

func (e *MissingInterrupt) Error() string {
	return fmt.Sprintf("rfid: block %d: missing rx/tx interrupt (irq=0x%02X)", e.Block, e.Status)
}
func (e *MissingInterrupt) Is(target error) bool { return target == ErrTransport }
func (e *MissingInterrupt) Code() uint16         { return CodeMissingInterrupt }

// BusError wraps a failure of the SPI primitive itself.
type BusError struct {
	Block uint8
	Err   error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("rfid: block %d: spi: %v", e.Block, e.Err)
}
func (e *BusError) Unwrap() error         { return e.Err }
func (e *BusError) Is(target error) bool { return target == ErrTransport }
func (e *BusError) Code() uint16         { return CodeBus }

// ---- DECODE ----

// IsoError carries the ISO 15693 error code returned by the transponder.
type IsoError struct {
	Block uint8
	Flags uint8
}

func (e *IsoError) Error() string {
	return fmt.Sprintf("rfid: block %d: iso error 0x%02X", e.Block, e.Flags)
}
func (e *IsoError) Is(target error) bool { return target == ErrDecode }
func (e *IsoError) Code() uint16         { return CodeIsoError }

// BadLength means the response was not one flags byte plus 8 data bytes.
type BadLength struct {
	Block uint8
	Len   uint8
}

func (e *BadLength) Error() string {
	return fmt.Sprintf("rfid: block %d: bad fifo length %d", e.Block, e.Len)
}
func (e *BadLength) Is(target error) bool { return target == ErrDecode }
func (e *BadLength) Code() uint16         { return CodeBadLength }

// ErrorCode extracts the status code of err, or 0 when err carries none.
func ErrorCode(err error) uint16 {
	var c interface{ Code() uint16 }
	if errors.As(err, &c) {
		return c.Code()
	}
	return 0
}
