// internal/rfid/reader.go
package rfid

import (
	"log/slog"

	"github.com/tamzrod/glucoguard/internal/transport"
)

// Reader register map and command codes (SPI address byte).
const (
	regChipStateControl = 0x00
	regISOControl       = 0x01
	regIRQStatus        = 0x0C
	regFIFOStatus       = 0x1C
	regTXLength1        = 0x1D
	regFIFO             = 0x1F

	addrRead       = 0x40
	addrContinuous = 0x20

	cmdResetFIFO     = 0x8F
	cmdSendWithCRC   = 0x91
	chipStateRFOn    = 0x21 // rf on, 5 V supply
	chipStateRFOff   = 0x01
	isoMode15693High = 0x02 // 26.48 kbps, one subcarrier, 1 out of 4
	isoFlags         = 0x02 // high data rate
	isoReadSingle    = 0x20

	irqRxTxMask = 0xC0
)

// Timing (ms).
const (
	SettleDelayMs = 30
	SetupDelayMs  = 10
)

// MaxFIFO is the largest FIFO length accepted for one block.
const MaxFIFO = 10

var setupFrame = [...]byte{
	addrContinuous | regChipStateControl,
	chipStateRFOn,
	isoMode15693High,
	0x00, // iso 14443B options
	0x00, // iso 14443A options
	0xC1, // tx timer high
	0xBB, // tx timer low
	0x00, // tx pulse length
	0x30, // rx no response wait
	0x1F, // rx wait
	0x01, // modulator control
	0x40, // rx special settings, 424 kHz subcarrier
	0x03, // regulator control
}

// readCommand returns the 8-byte Read Single Block frame for block.
func readCommand(block uint8) []byte {
	return []byte{
		cmdResetFIFO,
		cmdSendWithCRC,
		addrContinuous | regTXLength1,
		0x00, 0x30, // tx length: 3 bytes
		isoFlags,
		isoReadSingle,
		block,
	}
}

// Reader drives one ISO 15693 transponder through the reader chip.
type Reader struct {
	spi   transport.SPI
	sleep transport.Sleeper
	log   *slog.Logger
}

// NewReader binds the reader to its SPI bus and sleeper.
func NewReader(spi transport.SPI, sleep transport.Sleeper, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{spi: spi, sleep: sleep, log: log.With("component", "rfid")}
}

// Setup turns the field on and programs the ISO 15693 receiver.
func (r *Reader) Setup() error {
	if _, err := r.spi.Exchange(setupFrame[:], 0); err != nil {
		return &BusError{Block: FirstBlock, Err: err}
	}
	r.sleep.SleepMs(SetupDelayMs)
	return nil
}

// RFOff switches the field off after a scan.
func (r *Reader) RFOff() error {
	if _, err := r.spi.Exchange([]byte{regChipStateControl, chipStateRFOff}, 0); err != nil {
		return &BusError{Err: err}
	}
	return nil
}

// drain clears whatever the previous block left in the FIFO or IRQ status.
// Residue is logged, never fatal.
func (r *Reader) drain(block uint8) error {
	n, err := r.spi.ReadRegister(regFIFOStatus)
	if err != nil {
		return &BusError{Block: block, Err: err}
	}
	if n != 0 {
		r.log.Warn("fifo not empty before read", "block", block, "len", n)
		if _, err := r.spi.Exchange([]byte{cmdResetFIFO}, 0); err != nil {
			return &BusError{Block: block, Err: err}
		}
	}

	irq, err := r.spi.ReadInterruptStatus()
	if err != nil {
		return &BusError{Block: block, Err: err}
	}
	if irq != 0 {
		r.log.Warn("irq status not clear before read", "block", block, "irq", irq)
	}
	return nil
}

// ReadBlock sends Read Single Block for block and waits for completion.
func (r *Reader) ReadBlock(block uint8) error {
	if err := r.drain(block); err != nil {
		return err
	}

	if _, err := r.spi.Exchange(readCommand(block), 0); err != nil {
		return &BusError{Block: block, Err: err}
	}

	r.sleep.SleepMs(SettleDelayMs)

	irq, err := r.spi.ReadInterruptStatus()
	if err != nil {
		return &BusError{Block: block, Err: err}
	}
	if irq&irqRxTxMask != irqRxTxMask {
		return &MissingInterrupt{Block: block, Status: irq}
	}
	return nil
}

// FetchBlock reads the FIFO length and, if plausible, the FIFO itself.
// raw[0] is the SPI dummy byte, raw[1] the ISO flags.
// An oversized length is returned without touching the FIFO.
func (r *Reader) FetchBlock(block uint8) (uint8, []byte, error) {
	st, err := r.spi.ReadRegister(regFIFOStatus)
	if err != nil {
		return 0, nil, &BusError{Block: block, Err: err}
	}
	n := st & 0x7F
	if n > MaxFIFO {
		return n, nil, nil
	}

	raw, err := r.spi.Exchange([]byte{addrRead | addrContinuous | regFIFO}, int(n)+1)
	if err != nil {
		return n, nil, &BusError{Block: block, Err: err}
	}
	return n, raw, nil
}

// Read runs ReadBlock, FetchBlock and DecodeBlock for one block and then
// clears the interrupt register.
func (r *Reader) Read(block uint8) (Block, error) {
	if err := r.ReadBlock(block); err != nil {
		return Block{Index: block}, err
	}

	n, raw, err := r.FetchBlock(block)
	if err != nil {
		return Block{Index: block}, err
	}

	b, err := DecodeBlock(block, n, raw)
	if err != nil {
		return b, err
	}

	if _, err := r.spi.ReadInterruptStatus(); err != nil {
		return b, &BusError{Block: block, Err: err}
	}
	return b, nil
}
