package index

import (
	"log/slog"
	"time"

	"github.com/quietpage/quietpage/internal/page"
)

// Pipeline tuning. The relay bounds how far document production can run
// ahead of commits: when it fills, producers stall instead of growing
// memory without bound.
const (
	// RelayCapacity is the bounded relay between document production
	// and the commit stage.
	RelayCapacity = 1000

	// BatchSize is the flush threshold.
	BatchSize = 100

	// FlushInterval is the fallback flush timer, so sparse input lands
	// within bounded latency instead of waiting for a full batch.
	FlushInterval = time.Second
)

// commitFunc commits one batch; it must be all-or-nothing.
type commitFunc func(docs []*page.Document) error

// drainBatches consumes the relay, accumulating documents and flushing
// a batch whenever it reaches BatchSize or FlushInterval has elapsed
// since the last flush, whichever comes first. Relay close (end of
// stream) forces a final flush of any partial batch. The first commit
// error aborts immediately; the staging slot keeps whatever the earlier
// commits landed, which the next cycle's clear step discards.
//
// Returns the number of documents committed.
func drainBatches(relay <-chan *page.Document, commit commitFunc) (int, error) {
	batch := make([]*page.Document, 0, BatchSize)
	timer := time.NewTicker(FlushInterval)
	defer timer.Stop()

	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := commit(batch); err != nil {
			return err
		}
		slog.Debug("committed batch", slog.Int("size", len(batch)))
		total += len(batch)
		batch = make([]*page.Document, 0, BatchSize)
		timer.Reset(FlushInterval)
		return nil
	}

	for {
		select {
		case doc, ok := <-relay:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, doc)
			if len(batch) >= BatchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		case <-timer.C:
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
}
