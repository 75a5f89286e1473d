// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tamzrod/glucoguard/internal/alarm"
	"github.com/tamzrod/glucoguard/internal/telegram"
)

// endpointClient is the exact contract the status writer uses.
// IMPORTANT: There must be NO other version of this interface anywhere.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// publisher is the exact contract the mqtt sink uses.
type publisher interface {
	Publish(sender, kind string, v any, retained bool) error
}

// fanout delivers every event to each writer in order.
type fanout struct {
	writers []Writer
}

// New returns a Writer that delivers to all of ws.
// A failing writer does not stop the others.
func New(ws ...Writer) Writer {
	return &fanout{writers: ws}
}

func (f *fanout) Write(ev Event) error {
	var errs []string
	for _, w := range f.writers {
		if err := w.Write(ev); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// ---- mqtt sink ----

// GlucoseDoc is the retained per-sender glucose document.
type GlucoseDoc struct {
	Sender      string `json:"sender"`
	Timestamp   string `json:"timestamp"`
	GlucoseMgDL int    `json:"glucose_mgdl"`
	Battery     uint16 `json:"battery_charge_time"`
	BoardStatus uint8  `json:"board_status"`
	Status      string `json:"status"`
	Restart     bool   `json:"restart,omitempty"`
}

// DeltaDoc carries a change bitmap or the changed values.
type DeltaDoc struct {
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	Bytes     []int  `json:"bytes"`
}

type mqttSink struct {
	pub publisher
}

// NewMQTTSink publishes glucose, bitmap and values documents.
func NewMQTTSink(pub publisher) Writer {
	return &mqttSink{pub: pub}
}

func (m *mqttSink) Write(ev Event) error {
	sender := ev.SenderHex()
	ts := ev.At.UTC().Format(time.RFC3339)

	switch ev.Telegram.Command {
	case telegram.CmdGlucose:
		r, err := telegram.ParseGlucose(ev.Telegram)
		if err != nil {
			return err
		}
		st := alarm.Status(r.BoardStatus)
		doc := GlucoseDoc{
			Sender:      sender,
			Timestamp:   ts,
			GlucoseMgDL: int(r.Glucose) << 1,
			Battery:     r.Battery,
			BoardStatus: r.BoardStatus,
			Status:      st.String(),
			Restart:     st == alarm.StatusReset,
		}
		return m.pub.Publish(sender, "glucose", doc, true)

	case telegram.CmdBitmap:
		return m.pub.Publish(sender, "bitmap", deltaDoc(sender, ts, ev.Telegram.Payload), false)

	case telegram.CmdValues:
		return m.pub.Publish(sender, "values", deltaDoc(sender, ts, ev.Telegram.Payload), false)

	default:
		return fmt.Errorf("writer: unknown command 0x%02X from %s", ev.Telegram.Command, sender)
	}
}

// bytes as ints so JSON carries numbers, not base64
func deltaDoc(sender, ts string, payload []byte) DeltaDoc {
	out := make([]int, len(payload))
	for i, b := range payload {
		out[i] = int(b)
	}
	return DeltaDoc{Sender: sender, Timestamp: ts, Bytes: out}
}
