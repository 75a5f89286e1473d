// internal/telegram/esp3.go
package telegram

import (
	"errors"
	"fmt"

	"github.com/tamzrod/glucoguard/internal/transport"
)

// ESP3 framing constants. Wire-locked.
const (
	Sync            = 0x55
	PacketRadioERP1 = 0x01
	OptLen          = 7 // subtel, 4 x destination, dBm, security

	RorgVLD = 0xD2

	CmdGlucose = 0x20
	CmdBitmap  = 0x21
	CmdValues  = 0x22

	// common data trailer: sender id (4) + status (1)
	trailerLen = 5

	subTelNum   = 0x00
	broadcast   = 0xFF
	dBmUnknown  = 0xFF
	unencrypted = 0x00

	headerLen = 6 // sync, len hi, len lo, optlen, type, crc8h
)

// MaxData bounds the data block accepted by Decode.
const MaxData = 255

var (
	ErrShortTelegram = errors.New("telegram: short telegram")
	ErrSync          = errors.New("telegram: missing sync byte")
	ErrHeaderCRC     = errors.New("telegram: header checksum mismatch")
	ErrDataCRC       = errors.New("telegram: data checksum mismatch")
	ErrPacketType    = errors.New("telegram: not a radio telegram")
	ErrNotVLD        = errors.New("telegram: not a VLD telegram")
	ErrPayload       = errors.New("telegram: invalid payload")
)

// ID is the learned part of the transmitter id (id2, id3, id4).
type ID [3]byte

// Sender is the 4-byte sender id on the wire; the first byte is always 0xFF.
func (id ID) Sender() [4]byte { return [4]byte{0xFF, id[0], id[1], id[2]} }

func (id ID) String() string {
	return fmt.Sprintf("FF%02X%02X%02X", id[0], id[1], id[2])
}

// Telegram is one VLD radio telegram.
type Telegram struct {
	Command byte
	Payload []byte
	Sender  [4]byte
	Status  byte

	// optional block, filled by Decode
	SubTel   byte
	Dest     [4]byte
	DBm      byte
	Security byte
}

// dataLen is the length of the data block (rorg .. status).
func (t Telegram) dataLen() int { return 1 + 1 + len(t.Payload) + trailerLen }

// ---- ENCODE ----

// Encoder streams telegrams byte by byte onto a line, keeping the running
// checksum as it goes.
type Encoder struct {
	line transport.Line
	crc  crcRegister
	err  error
}

// NewEncoder writes to line.
func NewEncoder(line transport.Line) *Encoder {
	return &Encoder{line: line}
}

func (e *Encoder) put(b byte) {
	if e.err != nil {
		return
	}
	if err := e.line.SendByte(b); err != nil {
		e.err = fmt.Errorf("telegram: send: %w", err)
		return
	}
	e.crc.update(b)
}

func (e *Encoder) putCRC() { e.put(byte(e.crc)) }

// Encode writes t.
func (e *Encoder) Encode(t Telegram) error {
	e.err = nil
	dlen := t.dataLen()
	if dlen > 0xFFFF {
		return fmt.Errorf("%w: data length %d", ErrPayload, dlen)
	}

	e.put(Sync)
	e.crc.reset()
	e.put(byte(dlen >> 8))
	e.put(byte(dlen))
	e.put(OptLen)
	e.put(PacketRadioERP1)
	e.putCRC()

	e.crc.reset()
	e.put(RorgVLD)
	e.put(t.Command)
	for _, b := range t.Payload {
		e.put(b)
	}
	for _, b := range t.Sender {
		e.put(b)
	}
	e.put(t.Status)

	e.put(subTelNum)
	for k := 0; k < 4; k++ {
		e.put(broadcast)
	}
	e.put(dBmUnknown)
	e.put(unencrypted)
	e.putCRC()

	return e.err
}

type bufLine struct{ b []byte }

func (l *bufLine) SendByte(b byte) error {
	l.b = append(l.b, b)
	return nil
}

// Marshal returns the wire bytes of t.
func Marshal(t Telegram) ([]byte, error) {
	l := &bufLine{b: make([]byte, 0, headerLen+t.dataLen()+OptLen+1)}
	if err := NewEncoder(l).Encode(t); err != nil {
		return nil, err
	}
	return l.b, nil
}

// ---- REPORTS ----

// GlucoseReport is the payload of CmdGlucose.
type GlucoseReport struct {
	Glucose     uint8 // halved mg/dL, 0 = restart or error
	Battery     uint16
	BoardStatus uint8
}

// Glucose builds a CmdGlucose telegram.
func Glucose(id ID, r GlucoseReport) Telegram {
	return Telegram{
		Command: CmdGlucose,
		Payload: []byte{r.Glucose, byte(r.Battery >> 8), byte(r.Battery), r.BoardStatus},
		Sender:  id.Sender(),
	}
}

// Bitmap builds a CmdBitmap telegram.
func Bitmap(id ID, bitmap []byte) Telegram {
	return Telegram{
		Command: CmdBitmap,
		Payload: append([]byte(nil), bitmap...),
		Sender:  id.Sender(),
	}
}

// Values builds a CmdValues telegram.
func Values(id ID, values []byte) Telegram {
	return Telegram{
		Command: CmdValues,
		Payload: append([]byte(nil), values...),
		Sender:  id.Sender(),
	}
}

// ParseGlucose extracts a GlucoseReport from t.
func ParseGlucose(t Telegram) (GlucoseReport, error) {
	if t.Command != CmdGlucose || len(t.Payload) != 4 {
		return GlucoseReport{}, fmt.Errorf("%w: cmd 0x%02X len %d", ErrPayload, t.Command, len(t.Payload))
	}
	return GlucoseReport{
		Glucose:     t.Payload[0],
		Battery:     uint16(t.Payload[1])<<8 | uint16(t.Payload[2]),
		BoardStatus: t.Payload[3],
	}, nil
}

// ---- DECODE ----

// Decode parses one complete telegram at the start of buf and returns the
// number of bytes it occupied.
func Decode(buf []byte) (Telegram, int, error) {
	if len(buf) < headerLen {
		return Telegram{}, 0, ErrShortTelegram
	}
	if buf[0] != Sync {
		return Telegram{}, 0, ErrSync
	}
	if CRC8(buf[1:5]) != buf[5] {
		return Telegram{}, 0, ErrHeaderCRC
	}

	dlen := int(buf[1])<<8 | int(buf[2])
	olen := int(buf[3])
	if buf[4] != PacketRadioERP1 {
		return Telegram{}, 0, fmt.Errorf("%w: type 0x%02X", ErrPacketType, buf[4])
	}
	if dlen < 2+trailerLen || dlen > MaxData {
		return Telegram{}, 0, fmt.Errorf("%w: data length %d", ErrPayload, dlen)
	}

	total := headerLen + dlen + olen + 1
	if len(buf) < total {
		return Telegram{}, 0, ErrShortTelegram
	}

	body := buf[headerLen : headerLen+dlen+olen]
	if CRC8(body) != buf[total-1] {
		return Telegram{}, 0, ErrDataCRC
	}

	data, opt := body[:dlen], body[dlen:]
	if data[0] != RorgVLD {
		return Telegram{}, 0, fmt.Errorf("%w: rorg 0x%02X", ErrNotVLD, data[0])
	}

	t := Telegram{
		Command: data[1],
		Payload: append([]byte(nil), data[2:dlen-trailerLen]...),
		Status:  data[dlen-1],
	}
	copy(t.Sender[:], data[dlen-trailerLen:dlen-1])

	if len(opt) >= OptLen {
		t.SubTel = opt[0]
		copy(t.Dest[:], opt[1:5])
		t.DBm = opt[5]
		t.Security = opt[6]
	}
	return t, total, nil
}
