// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tamzrod/glucoguard/internal/status"
	"github.com/tamzrod/glucoguard/internal/telegram"
)

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and writes it verbatim.
// No logic, no state, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// deviceStatusWriter is the concrete implementation used by the bridge.
type deviceStatusWriter struct {
	plan *StatusPlan
	cli  endpointClient

	needFull bool
	last     [status.LiveSlots]uint16
	nameRegs []uint16
}

var slotNames = [status.LiveSlots]string{
	status.SlotHealthCode:     "health",
	status.SlotLastErrorCode:  "last_error",
	status.SlotSecondsInError: "seconds_in_error",
	status.SlotGlucose:        "glucose",
	status.SlotBattery:        "battery",
	status.SlotBoardStatus:    "board_status",
	status.SlotSenderHigh:     "sender_hi",
	status.SlotSenderLow:      "sender_lo",
	status.SlotReports:        "reports",
}

// NewDeviceStatusWriter builds a status writer if status is enabled.
// If plan.Status is nil, status is disabled.
func NewDeviceStatusWriter(plan Plan, clients map[string]endpointClient) (*deviceStatusWriter, bool) {
	if plan.Status == nil {
		return nil, false
	}

	sp := plan.Status
	return &deviceStatusWriter{
		plan:     sp,
		cli:      clients[sp.Endpoint],
		needFull: true, // full re-assert on first successful write
		nameRegs: status.EncodeDeviceName(sp.DeviceName),
	}, true
}

// WriteStatus delivers a device status snapshot into status memory.
// On any write failure, the next successful call will re-assert the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw == nil || sw.plan == nil {
		return errors.New("status writer: disabled")
	}
	if sw.cli == nil {
		return fmt.Errorf("status writer: missing client for endpoint %s", sw.plan.Endpoint)
	}
	if sw.plan.UnitID > 255 {
		return fmt.Errorf("status writer: unit id %d out of range", sw.plan.UnitID)
	}

	baseAddr := sw.baseAddr()
	unitID := uint8(sw.plan.UnitID)
	live := s.Slots()

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		if err := sw.cli.WriteRegisters(unitID, baseAddr, sw.fullBlockRegs(s)); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		sw.needFull = false
		sw.last = live
		return nil
	}

	var errs []string

	// live slots, change-only
	for slot, v := range live {
		if sw.last[slot] == v {
			continue
		}
		if err := sw.cli.WriteRegisters(unitID, baseAddr+uint16(slot), []uint16{v}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", slot, slotNames[slot], err))
			continue
		}
		sw.last[slot] = v
	}

	if len(errs) > 0 {
		// any partial failure forces a re-assert on next success
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	return nil
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	// Each device owns a fixed SlotsPerDevice block.
	return sw.plan.BaseSlot * status.SlotsPerDevice
}

func (sw *deviceStatusWriter) fullBlockRegs(s status.Snapshot) []uint16 {
	regs := status.Encode(s)

	// Device name always lives at the end of the block
	for i := 0; i < status.SlotDeviceNameSlots && i < len(sw.nameRegs); i++ {
		regs[status.SlotDeviceNameStart+i] = sw.nameRegs[i]
	}

	return regs
}

// ---- status sink ----

// statusSink feeds glucose reports through a tracker into a status writer.
type statusSink struct {
	tracker *status.Tracker
	sw      StatusWriter
}

// NewStatusSink wraps sw as a Writer. Only glucose telegrams reach it.
func NewStatusSink(sw StatusWriter, staleAfter time.Duration) *statusSink {
	return &statusSink{tracker: status.NewTracker(staleAfter), sw: sw}
}

func (s *statusSink) Write(ev Event) error {
	if ev.Telegram.Command != telegram.CmdGlucose {
		return nil
	}
	r, err := telegram.ParseGlucose(ev.Telegram)
	if err != nil {
		return err
	}
	return s.sw.WriteStatus(s.tracker.Observe(ev.Telegram.Sender, r, ev.At))
}

// Tick writes a stale snapshot once the transmitter has gone quiet.
func (s *statusSink) Tick(now time.Time) error {
	snap, ok := s.tracker.Tick(now)
	if !ok {
		return nil
	}
	return s.sw.WriteStatus(snap)
}
