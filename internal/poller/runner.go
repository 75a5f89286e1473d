// internal/poller/runner.go
package poller

import (
	"context"

	"github.com/tamzrod/glucoguard/internal/transport"
)

// waitChunkMs bounds one sleep so cancellation is noticed.
const waitChunkMs = 1000

// Run boots the device and runs passes until ctx is done.
// Each PollResult is emitted on out when out is non-nil.
// One pass at a time. No overlap.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) {
	p.Boot(ctx)

	for ctx.Err() == nil {
		res := p.PollOnce(ctx)

		if out != nil {
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}

		p.wait(ctx, res.WaitMs)
	}
}

func (p *Poller) wait(ctx context.Context, ms int32) {
	for ms > 0 && ctx.Err() == nil {
		chunk := min(ms, waitChunkMs)
		transport.SleepFull(p.set.Sleep, chunk)
		ms -= chunk
	}
}
