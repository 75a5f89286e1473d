// internal/cache/cache.go
package cache

import (
	"fmt"

	"github.com/tamzrod/glucoguard/internal/params"
)

// Store layout. These values define the image format and MUST NOT be configurable.

// ---- PARAMETERS ----

// ParamsAddr is where the parameter blob lives.
const ParamsAddr = 0

// ---- PER-PASS REGION ----

// Base is the first address written by a pass.
const Base = 0x20

// PayloadBlocks is the number of cached sensor blocks (4..14).
const PayloadBlocks = 11

// BlockSize is the payload size of one sensor block.
const BlockSize = 8

// Scalar fields, directly after the block payloads.
const (
	AddrPayload   = Base
	AddrPass      = AddrPayload + PayloadBlocks*BlockSize
	AddrAverage   = AddrPass + 1
	AddrBaseline  = AddrAverage + 1
	AddrLow       = AddrBaseline + 1
	AddrHigh      = AddrLow + 1
	AddrTrendIdx  = AddrHigh + 1
	AddrHistIdx   = AddrTrendIdx + 1
	AddrTrendSlot = AddrHistIdx + 1
	AddrHistSlot  = AddrTrendSlot + 1
)

// Ring buffers of trimmed averages.
const (
	TrendRingSize = 16
	HistRingSize  = 32

	AddrTrendRing = AddrHistSlot + 1
	AddrHistRing  = AddrTrendRing + TrendRingSize
)

// End is one past the last address of the per-pass region.
const End = AddrHistRing + HistRingSize

// ---- DELTA ----

// GroupSize is the number of bytes covered by one bitmap bit.
const GroupSize = 8

// BitmapLen is the number of bitmap bytes covering the per-pass region.
const BitmapLen = ((End-Base+GroupSize-1)/GroupSize + 7) / 8

// ValuesCap bounds the changed-value list. Later changes are dropped.
const ValuesCap = 32

// Delta is what changed during one pass.
// Bit g of the bitmap (byte g/8, bit g%8) covers addresses Base+8g..Base+8g+7.
type Delta struct {
	Bitmap  [BitmapLen]byte
	Values  []byte
	Dropped int
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool { return len(d.Values) == 0 && d.Dropped == 0 }

// Cache writes through a cursor and records what actually changed.
type Cache struct {
	store  Store
	cursor uint16
	bitmap [BitmapLen]byte
	values []byte
	drop   int
}

// New binds a cache to its store.
func New(store Store) *Cache {
	return &Cache{
		store:  store,
		cursor: Base,
		values: make([]byte, 0, ValuesCap),
	}
}

// BeginPass resets the cursor and clears the delta.
func (c *Cache) BeginPass() {
	c.cursor = Base
	c.bitmap = [BitmapLen]byte{}
	c.values = c.values[:0]
	c.drop = 0
}

// Cursor is the next address WriteCached will touch.
func (c *Cache) Cursor() uint16 { return c.cursor }

// WriteCached stores v at the cursor if it differs from what is there and
// advances the cursor in any case.
func (c *Cache) WriteCached(v byte) error {
	addr := c.cursor
	if addr < Base || addr >= End {
		return fmt.Errorf("%w: cursor 0x%03X outside pass region", ErrAddress, addr)
	}

	old, err := c.store.Get(addr)
	if err != nil {
		return err
	}
	c.cursor++

	if old == v {
		return nil
	}

	g := (addr - Base) / GroupSize
	c.bitmap[g/8] |= 1 << (g % 8)

	if len(c.values) < ValuesCap {
		c.values = append(c.values, v)
	} else {
		c.drop++
	}
	return c.store.Put(addr, v)
}

// Seek moves the cursor forward to addr without writing.
func (c *Cache) Seek(addr uint16) error {
	if addr < c.cursor || addr > End {
		return fmt.Errorf("cache: seek 0x%03X from 0x%03X", addr, c.cursor)
	}
	c.cursor = addr
	return nil
}

// Delta returns a copy of this pass's changes.
func (c *Cache) Delta() Delta {
	return Delta{
		Bitmap:  c.bitmap,
		Values:  append([]byte(nil), c.values...),
		Dropped: c.drop,
	}
}

// EndPass flushes buffered stores.
func (c *Cache) EndPass() error {
	if cm, ok := c.store.(Committer); ok {
		return cm.Commit()
	}
	return nil
}

// ---- PASS RECORD ----

// WriteBlock caches the payload of one sensor block at the cursor.
func (c *Cache) WriteBlock(payload [BlockSize]byte) error {
	for _, v := range payload {
		if err := c.WriteCached(v); err != nil {
			return err
		}
	}
	return nil
}

// Summary is the per-pass scalar record.
type Summary struct {
	Pass     uint16
	Average  uint8
	Baseline uint8
	Low      uint8
	High     uint8
	TrendIdx uint8
	HistIdx  uint8
}

// WriteSummary writes the scalar fields and one slot of each ring.
// The cursor may be anywhere before AddrPass (a short scan leaves it early).
func (c *Cache) WriteSummary(s Summary) error {
	if err := c.Seek(AddrPass); err != nil {
		return err
	}

	trendSlot := s.TrendIdx % TrendRingSize
	histSlot := s.HistIdx % HistRingSize

	for _, v := range []byte{
		byte(s.Pass),
		s.Average,
		s.Baseline,
		s.Low,
		s.High,
		s.TrendIdx,
		s.HistIdx,
		trendSlot,
		histSlot,
	} {
		if err := c.WriteCached(v); err != nil {
			return err
		}
	}

	if err := c.Seek(AddrTrendRing + uint16(trendSlot)); err != nil {
		return err
	}
	if err := c.WriteCached(s.Average); err != nil {
		return err
	}

	if err := c.Seek(AddrHistRing + uint16(histSlot)); err != nil {
		return err
	}
	return c.WriteCached(s.Average)
}

// ---- PARAMETER BLOB ----

// ReadParams loads the parameter blob from the store.
func ReadParams(s Store) (params.Params, error) {
	blob := make([]byte, params.BlobSize)
	for i := range blob {
		v, err := s.Get(uint16(ParamsAddr + i))
		if err != nil {
			return params.Params{}, err
		}
		blob[i] = v
	}
	return params.Decode(blob)
}

// WriteParams stores the parameter blob (provisioning).
func WriteParams(s Store, p params.Params) error {
	for i, v := range p.Encode() {
		if err := s.Put(uint16(ParamsAddr+i), v); err != nil {
			return err
		}
	}
	if cm, ok := s.(Committer); ok {
		return cm.Commit()
	}
	return nil
}
