// internal/glucose/glucose.go
package glucose

import (
	"fmt"
	"slices"

	"github.com/tamzrod/glucoguard/internal/params"
)

// SamplesPerPass is the fixed number of trend samples carried by blocks 4..14.
const SamplesPerPass = 15

// trimCount values are dropped from each end before averaging.
const trimCount = 3

// Reading is one halved glucose value (mg/dL ÷ 2) or Unknown.
// Unknown serializes to 0 on the wire and in the cache.
type Reading struct {
	value uint8
	known bool
}

// Unknown is the sentinel for a sample that could not be decoded.
var Unknown = Reading{}

// Value wraps a halved glucose value.
func Value(halved uint8) Reading {
	return Reading{value: halved, known: true}
}

// Known reports whether the reading carries a decoded value.
func (r Reading) Known() bool { return r.known }

// Byte is the wire/cache encoding.
func (r Reading) Byte() uint8 {
	if !r.known {
		return 0
	}
	return r.value
}

// MgDL returns the reading in mg/dL.
func (r Reading) MgDL() int {
	return int(r.Byte()) << 1
}

func (r Reading) String() string {
	if !r.known {
		return "unknown"
	}
	return fmt.Sprintf("%d mg/dL", r.MgDL())
}

// Raw12 extracts the 12-bit sensor value stored little-endian at off+2.
func Raw12(buf []byte, off int) uint16 {
	h := uint16(buf[off+3] & 0x0F)
	l := uint16(buf[off+2])
	return h<<8 | l
}

// Calibrate converts a raw sensor value into a halved reading.
// The second return value is true when the result had to be clipped to 8 bits.
func Calibrate(raw uint16, p params.Params) (Reading, bool) {
	mgdl := int32(p.SensorOffset) + int32(raw)*int32(p.SensorSlope)/1000
	halved := mgdl >> 1

	switch {
	case halved < 0:
		return Value(0), true
	case halved > 0xFF:
		return Value(0xFF), true
	}
	return Value(uint8(halved)), false
}

// SampleSet collects the samples of one scan pass.
// Slots that were never filled stay Unknown.
type SampleSet struct {
	samples [SamplesPerPass]Reading
	n       int
	clipped int
}

// Reset empties the set for a new pass.
func (s *SampleSet) Reset() {
	*s = SampleSet{}
}

// Add appends one reading; extra readings beyond SamplesPerPass are dropped.
func (s *SampleSet) Add(r Reading) {
	if s.n >= SamplesPerPass {
		return
	}
	s.samples[s.n] = r
	s.n++
}

// AddClipped records a reading that needed saturation.
func (s *SampleSet) AddClipped(r Reading) {
	s.clipped++
	s.Add(r)
}

// Len is the number of filled slots.
func (s *SampleSet) Len() int { return s.n }

// Clipped is the number of saturated readings in this pass.
func (s *SampleSet) Clipped() int { return s.clipped }

// Bytes returns the wire encoding of all SamplesPerPass slots.
func (s *SampleSet) Bytes() [SamplesPerPass]uint8 {
	var out [SamplesPerPass]uint8
	for i, r := range s.samples {
		out[i] = r.Byte()
	}
	return out
}

// TrimmedAverage is the pass trend value in halved units.
func (s *SampleSet) TrimmedAverage() uint8 {
	return TrimmedAverage(s.Bytes())
}

// TrimmedAverage sorts the samples, drops the three lowest and three highest
// and returns the integer mean of the remaining nine.
func TrimmedAverage(samples [SamplesPerPass]uint8) uint8 {
	sorted := samples
	slices.Sort(sorted[:])

	var sum uint16
	for _, v := range sorted[trimCount : SamplesPerPass-trimCount] {
		sum += uint16(v)
	}
	return uint8(sum / (SamplesPerPass - 2*trimCount))
}
