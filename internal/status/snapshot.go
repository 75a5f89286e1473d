// internal/status/snapshot.go
package status

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16

	Glucose     uint16 // mg/dL
	Battery     uint16
	BoardStatus uint16
	Sender      uint32
	Reports     uint16
}

// Slots returns the live slots of s in block order.
func (s Snapshot) Slots() [LiveSlots]uint16 {
	var regs [LiveSlots]uint16
	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	regs[SlotGlucose] = s.Glucose
	regs[SlotBattery] = s.Battery
	regs[SlotBoardStatus] = s.BoardStatus
	regs[SlotSenderHigh] = uint16(s.Sender >> 16)
	regs[SlotSenderLow] = uint16(s.Sender)
	regs[SlotReports] = s.Reports
	return regs
}
