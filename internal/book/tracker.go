// Package book maintains a local replica of the venue order book.
package book

import (
	"sort"
	"sync"

	"margin_maker/internal/core"
	apperrors "margin_maker/pkg/errors"

	"github.com/shopspring/decimal"
)

// Tracker holds the current view of one pair's order book, built from
// an initial snapshot and incremental diff events. Levels are keyed by
// venue order ID; best prices are computed on demand.
type Tracker struct {
	mu     sync.RWMutex
	bids   map[string]core.PriceLevel
	asks   map[string]core.PriceLevel
	seeded bool
	logger core.ILogger
}

// NewTracker creates an empty order book tracker.
func NewTracker(logger core.ILogger) *Tracker {
	return &Tracker{
		bids:   make(map[string]core.PriceLevel),
		asks:   make(map[string]core.PriceLevel),
		logger: logger.WithField("component", "book_tracker"),
	}
}

// ApplySnapshot replaces the entire book contents.
func (t *Tracker) ApplySnapshot(snap core.BookSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bids = make(map[string]core.PriceLevel, len(snap.Bids))
	t.asks = make(map[string]core.PriceLevel, len(snap.Asks))
	for _, lvl := range snap.Bids {
		t.bids[lvl.ID] = lvl
	}
	for _, lvl := range snap.Asks {
		t.asks[lvl.ID] = lvl
	}
	t.seeded = true

	t.logger.Debug("Applied order book snapshot",
		"bids", len(snap.Bids),
		"asks", len(snap.Asks))
}

// ApplyUpdate applies a single diff event to the book. Updates that
// reference unknown order IDs are logged and skipped.
func (t *Tracker) ApplyUpdate(ev core.DiffEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	side := t.bids
	if ev.Side == core.SideSell {
		side = t.asks
	}

	switch ev.Kind {
	case core.DiffNew:
		if ev.Price == nil || ev.Quantity == nil {
			t.logger.Warn("New level event missing price or quantity", "id", ev.ID)
			return
		}
		side[ev.ID] = core.PriceLevel{ID: ev.ID, Price: *ev.Price, Quantity: *ev.Quantity}

	case core.DiffUpdated:
		lvl, ok := side[ev.ID]
		if !ok {
			t.logger.Debug("Update for unknown order, skipping", "id", ev.ID)
			return
		}
		// Either field may be absent on the wire; apply whichever arrived.
		if ev.Quantity != nil {
			if ev.Quantity.IsZero() {
				delete(side, ev.ID)
				return
			}
			lvl.Quantity = *ev.Quantity
		}
		if ev.Price != nil {
			lvl.Price = *ev.Price
		}
		side[ev.ID] = lvl

	case core.DiffRemoved:
		delete(side, ev.ID)
	}
}

// BestBid returns the highest resting bid price.
func (t *Tracker) BestBid() (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.bids) == 0 {
		return decimal.Zero, apperrors.ErrEmptyBook
	}

	best := decimal.Zero
	first := true
	for _, lvl := range t.bids {
		if first || lvl.Price.GreaterThan(best) {
			best = lvl.Price
			first = false
		}
	}
	return best, nil
}

// BestAsk returns the lowest resting ask price.
func (t *Tracker) BestAsk() (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.asks) == 0 {
		return decimal.Zero, apperrors.ErrEmptyBook
	}

	best := decimal.Zero
	first := true
	for _, lvl := range t.asks {
		if first || lvl.Price.LessThan(best) {
			best = lvl.Price
			first = false
		}
	}
	return best, nil
}

// Best returns the best price on the given side.
func (t *Tracker) Best(side core.Side) (decimal.Decimal, error) {
	if side == core.SideBuy {
		return t.BestBid()
	}
	return t.BestAsk()
}

// Levels returns the resting levels of one side in rank order: descending
// price for bids, ascending for asks.
func (t *Tracker) Levels(side core.Side) []core.PriceLevel {
	t.mu.RLock()
	src := t.bids
	if side == core.SideSell {
		src = t.asks
	}
	out := make([]core.PriceLevel, 0, len(src))
	for _, lvl := range src {
		out = append(out, lvl)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if side == core.SideBuy {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// Seeded reports whether a snapshot has been applied.
func (t *Tracker) Seeded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seeded
}

// Depth returns the number of live levels on each side.
func (t *Tracker) Depth() (bids, asks int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bids), len(t.asks)
}
