package harness

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/rvcommit/commit"
)

// Player publishes the entries of a recorded event stream.
type Player struct {
	runner

	reader *commit.StreamReader
	cycle  uint64
	stats  Stats
}

// NewPlayer creates a Player reading from r.
func NewPlayer(r *commit.StreamReader, opts ...Option) *Player {
	p := &Player{reader: r}
	for _, opt := range opts {
		opt(&p.runner)
	}
	return p
}

// Stats returns counters for the entries played so far.
func (p *Player) Stats() Stats {
	return p.stats
}

// Run publishes entries until the stream ends, an entry reaches the cycle
// limit, a stopper asks to stop or ctx is cancelled.
func (p *Player) Run(ctx context.Context) (StopReason, error) {
	for {
		if err := ctx.Err(); err != nil {
			return StopNone, err
		}

		ent, err := p.reader.Next()
		if errors.Is(err, io.EOF) {
			return StopEndOfStream, nil
		}
		if err != nil {
			return StopNone, fmt.Errorf("failed to read entry %d: %w", p.published, err)
		}

		if p.maxCycles > 0 && ent.Cycle >= p.maxCycles {
			return StopMaxCycles, nil
		}

		p.publish(&ent)

		if ent.Kind == commit.KindCommit {
			p.stats.Commits++
			if ent.Event.Trapped() {
				p.stats.Traps++
			}
		}
		if ent.Cycle >= p.cycle {
			p.cycle = ent.Cycle
			p.stats.Cycles = ent.Cycle + 1
		}

		if stop, err := p.stopRequested(); stop {
			return StopRequested, err
		}
	}
}
