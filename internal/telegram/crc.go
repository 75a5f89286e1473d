// internal/telegram/crc.go
package telegram

// CRC-8, polynomial x^8+x^2+x+1 (0x07), init 0, no reflection, no final xor.

const crcPoly = 0x07

var crcTable = func() (t [256]byte) {
	for i := range t {
		c := byte(i)
		for k := 0; k < 8; k++ {
			if c&0x80 != 0 {
				c = c<<1 ^ crcPoly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC8 returns the checksum of data.
func CRC8(data []byte) byte {
	var r crcRegister
	for _, b := range data {
		r.update(b)
	}
	return byte(r)
}

// crcRegister is the running checksum over the bytes put on the wire.
type crcRegister byte

func (r *crcRegister) update(b byte) { *r = crcRegister(crcTable[byte(*r)^b]) }
func (r *crcRegister) reset() { *r = 0 }
