// internal/telegram/stream.go
package telegram

import (
	"bytes"

	"github.com/tamzrod/glucoguard/internal/transport"
)

// StreamReader cuts telegrams out of a serial byte stream.
// Garbage and frames with a broken header are skipped byte by byte.
type StreamReader struct {
	rx  transport.Receiver
	buf []byte
}

// NewStreamReader reads from rx.
func NewStreamReader(rx transport.Receiver) *StreamReader {
	return &StreamReader{rx: rx, buf: make([]byte, 0, 64)}
}

// fill reads until buf holds n bytes. Bytes already read are kept when the
// receiver fails, so a timeout does not lose a partial frame.
func (s *StreamReader) fill(n int) error {
	for len(s.buf) < n {
		b, err := s.rx.ReadByte()
		if err != nil {
			return err
		}
		s.buf = append(s.buf, b)
	}
	return nil
}

// Next returns the next telegram. Receiver errors (including
// transport.ErrNoData) are returned as is; a frame that fails data checks is
// consumed and its error returned.
func (s *StreamReader) Next() (Telegram, error) {
	for {
		if i := bytes.IndexByte(s.buf, Sync); i < 0 {
			s.buf = s.buf[:0]
		} else if i > 0 {
			s.buf = append(s.buf[:0], s.buf[i:]...)
		}

		if len(s.buf) == 0 {
			if err := s.fill(1); err != nil {
				return Telegram{}, err
			}
			continue
		}

		if err := s.fill(headerLen); err != nil {
			return Telegram{}, err
		}
		dlen := int(s.buf[1])<<8 | int(s.buf[2])
		if CRC8(s.buf[1:5]) != s.buf[5] || dlen > MaxData {
			s.buf = append(s.buf[:0], s.buf[1:]...)
			continue
		}

		total := headerLen + dlen + int(s.buf[3]) + 1
		if err := s.fill(total); err != nil {
			return Telegram{}, err
		}

		t, _, err := Decode(s.buf[:total])
		s.buf = append(s.buf[:0], s.buf[total:]...)
		if err != nil {
			return Telegram{}, err
		}
		return t, nil
	}
}
