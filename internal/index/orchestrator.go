package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quietpage/quietpage/internal/page"
)

// Source produces the full current document set. A reindex cycle always
// re-derives state from the source; there is no incremental state to
// reconcile.
type Source interface {
	// Stream sends every current document to out, in no particular
	// order, possibly from multiple goroutines. It must not close out.
	Stream(ctx context.Context, out chan<- *page.Document) error
}

// State is the orchestrator's cycle state.
type State int32

const (
	// StateIdle means no cycle is running.
	StateIdle State = iota
	// StateClearing means the staging slot is being emptied.
	StateClearing
	// StateBatching means documents are streaming into staging.
	StateBatching
	// StateSwapping means the role flip is in progress.
	StateSwapping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClearing:
		return "clearing"
	case StateBatching:
		return "batching"
	case StateSwapping:
		return "swapping"
	default:
		return "unknown"
	}
}

// Orchestrator drives full reindex cycles: clear staging, stream every
// document through the batch pipeline, swap roles. Cycles are fully
// serialized by a single consumer loop; triggers arriving mid-cycle are
// dropped rather than queued (the watcher's debounce coalesces bursts,
// and the periodic timer fires again on its own).
type Orchestrator struct {
	roles    *RoleSet
	source   Source
	interval time.Duration

	// trigger is a single-slot mailbox: latest trigger wins.
	trigger chan struct{}
	state   atomic.Int32
}

// NewOrchestrator creates an Orchestrator reindexing from source every
// interval and on demand via Trigger.
func NewOrchestrator(roles *RoleSet, source Source, interval time.Duration) *Orchestrator {
	return &Orchestrator{
		roles:    roles,
		source:   source,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a reindex cycle. Non-blocking: when a trigger is
// already pending the new one is dropped, because the pending one
// already guarantees the eventual cycle captures the latest state.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// State returns the current cycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run is the single consumer loop. The periodic timer first fires only
// after one full interval has elapsed; there is no reindex on startup.
// Run blocks until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.trigger:
			slog.Info("filesystem change detected, starting reindex")
			o.runAndLog(ctx)
		case <-ticker.C:
			slog.Info("periodic reindex triggered")
			o.runAndLog(ctx)
		}
	}
}

// runAndLog runs one cycle and reports failure as a structured log
// event. No failure is fatal to the serving process, and no retry
// happens before the next trigger.
func (o *Orchestrator) runAndLog(ctx context.Context) {
	if err := o.Reindex(ctx); err != nil {
		slog.Error("reindex cycle failed", slog.String("error", err.Error()))
	}
}

// Reindex runs one full cycle: Idle → Clearing → Batching → Swapping →
// Idle. A failure at any stage aborts the cycle and leaves the active
// slot (and all live query results) completely unaffected; staging may
// be left partially populated and self-heals on the next cycle's clear.
func (o *Orchestrator) Reindex(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateClearing)) {
		return fmt.Errorf("reindex already in progress (%s)", o.State())
	}
	defer o.state.Store(int32(StateIdle))

	start := time.Now()
	slog.Info("indexing all pages")

	// Discard anything left from a previous, possibly-interrupted cycle.
	if err := o.roles.ClearStaging(); err != nil {
		return fmt.Errorf("clear staging: %w", err)
	}

	o.state.Store(int32(StateBatching))
	total, err := o.stageAll(ctx)
	if err != nil {
		return err
	}

	o.state.Store(int32(StateSwapping))
	if err := o.roles.Swap(); err != nil {
		return err
	}

	slog.Info("reindex complete",
		slog.Int("pages", total),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// stageAll streams the full document set through the bounded relay into
// the staging slot. Production runs on the source's worker pool; a
// commit failure cancels production and drains the relay before
// reporting.
func (o *Orchestrator) stageAll(ctx context.Context) (int, error) {
	produceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	relay := make(chan *page.Document, RelayCapacity)

	g, produceCtx := errgroup.WithContext(produceCtx)
	g.Go(func() error {
		defer close(relay)
		return o.source.Stream(produceCtx, relay)
	})

	total, commitErr := drainBatches(relay, o.roles.UpsertStaging)
	if commitErr != nil {
		// Unblock the producer and discard what it still has in flight.
		cancel()
		for range relay {
		}
	}

	produceErr := g.Wait()
	if commitErr != nil {
		return total, fmt.Errorf("commit to staging: %w", commitErr)
	}
	if produceErr != nil {
		return total, fmt.Errorf("stream documents: %w", produceErr)
	}
	return total, nil
}
