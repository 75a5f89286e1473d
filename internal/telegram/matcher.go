// internal/telegram/matcher.go
package telegram

import "sync/atomic"

// ReadBaseIDCommand is the ESP3 CO_RD_IDBASE request.
var ReadBaseIDCommand = [...]byte{0x55, 0x00, 0x01, 0x00, 0x05, 0x70, 0x08, 0x38}

// baseIDResponse is the fixed prefix of the module's answer. The three bytes
// after it are id2, id3, id4.
var baseIDResponse = [...]byte{0x55, 0x00, 0x05, 0x01, 0x02, 0xDB, 0x00, 0xFF}

const idOffset = len(baseIDResponse)

// Matcher recognises the base id response one byte at a time.
// Feed is called only by the receive path; Valid may be read from anywhere.
// ID is safe to read once Valid reports true.
type Matcher struct {
	idx   int
	id    ID
	valid atomic.Bool
}

// Feed consumes one received byte. A mismatch restarts matching with the
// next byte; bytes after the id are ignored.
func (m *Matcher) Feed(b byte) {
	if m.valid.Load() {
		return
	}

	switch {
	case m.idx < idOffset:
		if b != baseIDResponse[m.idx] {
			m.idx = 0
			return
		}
	case m.idx < idOffset+len(m.id)-1:
		m.id[m.idx-idOffset] = b
	default:
		m.id[len(m.id)-1] = b
		m.valid.Store(true)
	}
	m.idx++
}

// Valid reports whether the full id has been captured.
func (m *Matcher) Valid() bool { return m.valid.Load() }

// ID returns the captured id and whether it is valid.
func (m *Matcher) ID() (ID, bool) {
	if !m.valid.Load() {
		return ID{}, false
	}
	return m.id, true
}

// Reset forgets any partial match. A valid id is kept.
func (m *Matcher) Reset() {
	if m.valid.Load() {
		return
	}
	m.idx = 0
}
