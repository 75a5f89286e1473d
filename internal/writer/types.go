// internal/writer/types.go
package writer

import (
	"fmt"
	"time"

	"github.com/tamzrod/glucoguard/internal/telegram"
)

// StatusPlan places one transmitter's status block.
type StatusPlan struct {
	Endpoint   string
	UnitID     uint16
	BaseSlot   uint16
	DeviceName string
}

// Plan is the fully-built delivery plan of the bridge.
type Plan struct {
	Status *StatusPlan // nil => status block disabled

	// StaleAfter turns a silent transmitter's health to stale.
	StaleAfter time.Duration
}

// Event is one decoded telegram as received by the bridge.
type Event struct {
	At       time.Time
	Telegram telegram.Telegram
}

// SenderHex is the sender id as 8 hex digits.
func (e Event) SenderHex() string {
	s := e.Telegram.Sender
	return fmt.Sprintf("%02X%02X%02X%02X", s[0], s[1], s[2], s[3])
}

// Writer delivers bridge events to one output.
type Writer interface {
	Write(ev Event) error
}
