// Package assembler implements the block-assembly engine (C4): a
// single-writer accumulator that merges a locally pushed transaction stream
// and a polled pull source into an in-progress block, sealing it on a fixed
// timer.
package assembler

import (
	"context"
	"time"

	"github.com/init4tech/zenith-builder/codec"
	"github.com/init4tech/zenith-builder/log"
)

// Poller is the pull side of the merge: whatever C3 exposes for a
// synchronous, on-demand fetch. A poll failure is logged and treated as an
// empty result; it never skips the tick.
type Poller interface {
	Poll(ctx context.Context) ([]*codec.Transaction, error)
}

// Engine owns exactly one in-progress block for its entire lifetime.
type Engine struct {
	tickInterval time.Duration
	poller       Poller
	pushChan     <-chan *codec.Transaction
	outChan      chan<- *codec.Block
}

// New constructs an Engine. pushChan is the HTTP-ingest push stream;
// outChan receives sealed blocks; poller is invoked on every tick.
func New(tickInterval time.Duration, poller Poller, pushChan <-chan *codec.Transaction, outChan chan<- *codec.Block) *Engine {
	return &Engine{
		tickInterval: tickInterval,
		poller:       poller,
		pushChan:     pushChan,
		outChan:      outChan,
	}
}

// Run drives the biased select loop until ctx is canceled or pushChan is
// closed. The timer always wins when both it and a pending push message
// are simultaneously ready, implemented as a non-blocking timer check
// ahead of the full select.
func (e *Engine) Run(ctx context.Context) {
	block := codec.NewBlock()
	timer := time.NewTimer(e.tickInterval)
	defer timer.Stop()

	seal := func() {
		if !block.Empty() {
			select {
			case e.outChan <- block:
			case <-ctx.Done():
				return
			}
			block = codec.NewBlock()
		}
		timer.Reset(e.tickInterval)
	}

	onTick := func() {
		polled, err := e.poller.Poll(ctx)
		if err != nil {
			log.Warnw("poller failed on tick, sealing with push-ingested transactions only", "error", err.Error())
		}
		for _, tx := range polled {
			block.Append(tx)
		}
		seal()
	}

	for {
		// Non-blocking timer check: if the timer has already fired, service
		// it before considering a pending push, so the timer always wins
		// ties.
		select {
		case <-timer.C:
			onTick()
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			onTick()
		case tx, ok := <-e.pushChan:
			if !ok {
				return
			}
			block.Append(tx)
		}
	}
}
