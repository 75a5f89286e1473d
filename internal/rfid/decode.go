// internal/rfid/decode.go
package rfid

import "github.com/tamzrod/glucoguard/internal/glucose"

// Decode range: blocks [FirstBlock, EndBlock).
const (
	FirstBlock = 3
	EndBlock   = 15

	// IndexBlock carries the trend and history ring indices.
	IndexBlock = 3
)

// PayloadLen is the number of data bytes in one block.
const PayloadLen = 8

// goodLen is the FIFO length of a clean read: ISO flags plus one block.
const goodLen = 1 + PayloadLen

// Block is one decoded sensor block.
type Block struct {
	Index uint8

	// Payload holds the data bytes in sensor memory order. The FIFO delivers
	// them mirrored, so Payload[0] is raw[9].
	Payload    [PayloadLen]byte
	HasPayload bool

	// Set only for IndexBlock.
	HasIndices bool
	TrendIdx   uint8
	HistIdx    uint8

	raw [2]uint16
	n   int
}

// RawSamples returns the 12-bit sensor values found in the block.
func (b Block) RawSamples() []uint16 { return b.raw[:b.n] }

// ExpectedSamples is the number of trend samples block contributes.
// The trend table cycles through three layouts with the block index.
func ExpectedSamples(block uint8) int {
	if block <= IndexBlock || block >= EndBlock {
		return 0
	}
	if block%3 == 2 {
		return 2
	}
	return 1
}

// sampleOffsets gives the raw buffer offsets per block%3 layout.
var sampleOffsets = [3][]int{
	0: {4},    // BCAB
	1: {2},    // ABCA
	2: {6, 0}, // CABC
}

// DecodeBlock validates one FIFO read and extracts trend data.
// raw must hold fifoLen+1 bytes unless fifoLen is rejected first.
func DecodeBlock(block uint8, fifoLen uint8, raw []byte) (Block, error) {
	b := Block{Index: block}

	if fifoLen > MaxFIFO {
		return b, &FifoOverflow{Block: block, Len: fifoLen}
	}
	if len(raw) < 2 {
		return b, &BadLength{Block: block, Len: fifoLen}
	}
	if fifoLen == 2 || raw[1] != 0 {
		return b, &IsoError{Block: block, Flags: raw[1]}
	}
	if fifoLen != goodLen || len(raw) < goodLen+1 {
		return b, &BadLength{Block: block, Len: fifoLen}
	}

	if block < FirstBlock || block >= EndBlock {
		return b, nil
	}

	if block == IndexBlock {
		b.HasIndices = true
		b.HistIdx = raw[5]
		b.TrendIdx = raw[4]
		return b, nil
	}

	for i := 0; i < PayloadLen; i++ {
		b.Payload[i] = raw[goodLen-i]
	}
	b.HasPayload = true

	for _, off := range sampleOffsets[block%3] {
		b.raw[b.n] = glucose.Raw12(raw, off)
		b.n++
	}
	return b, nil
}
