// internal/rfid/scan.go
package rfid

import (
	"github.com/tamzrod/glucoguard/internal/glucose"
	"github.com/tamzrod/glucoguard/internal/params"
)

// ScanResult is the outcome of one pass over blocks 3..14.
type ScanResult struct {
	Samples  glucose.SampleSet
	TrendIdx uint8
	HistIdx  uint8

	// Blocks 4..14 that decoded cleanly, in read order.
	Blocks []Block

	// Err is the first failure; the scan stops there.
	Err         error
	FailedBlock uint8
}

// OK reports whether every block was read.
func (s *ScanResult) OK() bool { return s.Err == nil }

// Scan powers the field, reads the trend table and powers the field down.
// A failing block records Unknown for the samples it would have carried
// and aborts the scan.
func (r *Reader) Scan(p params.Params) ScanResult {
	var res ScanResult

	if err := r.Setup(); err != nil {
		res.Err, res.FailedBlock = err, FirstBlock
		r.log.Error("reader setup failed", "err", err)
		return res
	}
	defer func() {
		if err := r.RFOff(); err != nil {
			r.log.Warn("rf off failed", "err", err)
		}
	}()

	for blk := uint8(FirstBlock); blk < EndBlock; blk++ {
		b, err := r.Read(blk)
		if err != nil {
			for n, k := ExpectedSamples(blk), 0; k < n; k++ {
				res.Samples.Add(glucose.Unknown)
			}
			res.Err, res.FailedBlock = err, blk
			r.log.Warn("block read failed", "block", blk, "err", err)
			return res
		}

		if b.HasIndices {
			res.TrendIdx, res.HistIdx = b.TrendIdx, b.HistIdx
			r.log.Debug("ring indices", "trend_idx", b.TrendIdx, "hist_idx", b.HistIdx)
			continue
		}
		if !b.HasPayload {
			continue
		}

		r.log.Debug("block", "block", blk, "addr", 8*int(blk), "payload", b.Payload[:])
		res.Blocks = append(res.Blocks, b)

		for _, raw := range b.RawSamples() {
			g, clipped := glucose.Calibrate(raw, p)
			if clipped {
				res.Samples.AddClipped(g)
				r.log.Warn("sample saturated", "block", blk, "raw", raw, "value", g.Byte())
				continue
			}
			res.Samples.Add(g)
			r.log.Debug("sample", "block", blk, "raw", raw, "glucose", g.String())
		}
	}
	return res
}
