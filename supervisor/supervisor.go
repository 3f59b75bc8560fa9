// Package supervisor implements the process supervisor (C7): it spawns the
// assembly engine (which calls the poller on each tick), the submission
// pipeline, and the HTTP ingest server as independent goroutines, wires
// their channels, and returns on the first one to terminate so the process
// can shut down.
package supervisor

import (
	"context"
	"sync"

	"github.com/init4tech/zenith-builder/assembler"
	"github.com/init4tech/zenith-builder/codec"
	"github.com/init4tech/zenith-builder/ingest"
	"github.com/init4tech/zenith-builder/log"
	"github.com/init4tech/zenith-builder/submission"
)

// Config configures the supervisor's channel buffers and listen address.
// The channels themselves are buffered, not unbounded; ingest.Server puts
// an unbounded queue in front of the push channel, so HTTP handlers never
// block when its buffer is full (see ingest.Server.accept).
type Config struct {
	IngestAddr   string
	PushBuffer   int
	BlockBuffer  int
}

const (
	defaultPushBuffer  = 4096
	defaultBlockBuffer = 64
)

// Supervisor owns the wiring between the three long-running tasks and the
// shutdown protocol described in §4.7: on the first task's exit, it
// cancels the shared context, letting the engine and pipeline observe the
// cancelled context and exit on their own next iteration. The channels are
// not closed, and the ingest server does not watch the context.
type Supervisor struct {
	cfg      Config
	engine   *assembler.Engine
	pipeline *submission.Pipeline
	ingest   *ingest.Server

	pushChan chan *codec.Transaction
	outChan  chan *codec.Block
}

// New wires an Engine, Pipeline, and ingest Server together. The poller is
// already inside the engine; engine and pipeline are constructed by the
// caller (cmd/builder) since they both need fully-resolved config and
// signer/RPC dependencies.
func New(cfg Config, engine *assembler.Engine, pipeline *submission.Pipeline, ingestSrv *ingest.Server, pushChan chan *codec.Transaction, outChan chan *codec.Block) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		engine:   engine,
		pipeline: pipeline,
		ingest:   ingestSrv,
		pushChan: pushChan,
		outChan:  outChan,
	}
}

// Buffers returns the configured (or defaulted) channel capacities, for
// callers constructing the push/out channels before calling New.
func Buffers(cfg Config) (push, block int) {
	push = cfg.PushBuffer
	if push == 0 {
		push = defaultPushBuffer
	}
	block = cfg.BlockBuffer
	if block == 0 {
		block = defaultBlockBuffer
	}
	return push, block
}

// Run starts all three tasks and blocks until the first of them terminates,
// at which point it logs that task's identity and returns, having
// triggered cooperative shutdown of the remaining tasks.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan string, 4)
	var once sync.Once

	terminal := func(name string) {
		once.Do(func() {
			done <- name
		})
	}

	go func() {
		s.engine.Run(ctx)
		terminal("assembly engine")
	}()

	go func() {
		s.pipeline.Run(ctx, s.outChan)
		terminal("submission pipeline")
	}()

	go func() {
		err := s.ingest.ListenAndServe(s.cfg.IngestAddr)
		log.Warnw("ingest server exited", "error", err)
		terminal("http ingest")
	}()

	name := <-done
	log.Infow("task terminated, shutting down", "task", name)
	cancel()
}
