package trigger

import (
	"context"
	"testing"
	"time"

	"margin_maker/internal/core"
	"margin_maker/internal/mock"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func askLevel(id string, price float64) core.PriceLevel {
	return core.PriceLevel{ID: id, Price: decimal.NewFromFloat(price), Quantity: decimal.NewFromInt(1)}
}

func newEvent(kind core.DiffKind, id string, price float64) core.DiffEvent {
	ev := core.DiffEvent{Side: core.SideSell, Kind: kind, ID: id}
	if kind != core.DiffRemoved {
		p := decimal.NewFromFloat(price)
		q := decimal.NewFromInt(1)
		ev.Price = &p
		ev.Quantity = &q
	}
	return ev
}

func newTestMonitor(dialer core.IBookStreamDialer) (*Monitor, *mock.RecordingNotifier) {
	notifier := mock.NewRecordingNotifier()
	clock := mock.NewFakeClock(time.Now())
	m := NewMonitor(dialer, "WETH-DAI", clock, notifier, mock.NopLogger{})
	return m, notifier
}

func TestAwaitFiresOnRetrace(t *testing.T) {
	stream := mock.NewMockBookStream(10)
	dialer := mock.NewMockStreamDialer(stream)
	monitor, _ := newTestMonitor(dialer)

	stream.Push(core.BookMessage{
		MessageID: 1,
		Snapshot:  &core.BookSnapshot{Asks: []core.PriceLevel{askLevel("a1", 210)}},
	})
	stream.Push(core.BookMessage{MessageID: 2, Updates: []core.DiffEvent{newEvent(core.DiffNew, "a2", 205)}})
	stream.Push(core.BookMessage{MessageID: 3, Updates: []core.DiffEvent{newEvent(core.DiffRemoved, "a2", 0)}})
	stream.Push(core.BookMessage{MessageID: 4, Updates: []core.DiffEvent{newEvent(core.DiffNew, "a3", 200)}})

	price, err := monitor.Await(context.Background(), core.SideSell, BandParams{
		Depreciation: decimal.NewFromFloat(0.01),
	})
	require.NoError(t, err)

	// Best ask ratcheted up to 210 then dropped through the band at 200.
	assert.True(t, price.Equal(decimal.NewFromInt(200)))
	assert.True(t, stream.Unsubscribed())
	assert.True(t, stream.Closed())
}

func TestAwaitRedialsOnStreamDrop(t *testing.T) {
	first := mock.NewMockBookStream(10)
	second := mock.NewMockBookStream(10)
	dialer := mock.NewMockStreamDialer(first, second)
	monitor, notifier := newTestMonitor(dialer)

	first.Push(core.BookMessage{
		MessageID: 1,
		Snapshot:  &core.BookSnapshot{Asks: []core.PriceLevel{askLevel("a1", 210)}},
	})
	first.Push(core.BookMessage{MessageID: 2, Updates: []core.DiffEvent{newEvent(core.DiffNew, "a2", 209)}})
	first.Finish()

	second.Push(core.BookMessage{
		MessageID: 3,
		Snapshot:  &core.BookSnapshot{Asks: []core.PriceLevel{askLevel("b1", 300)}},
	})
	second.Push(core.BookMessage{MessageID: 4, Updates: []core.DiffEvent{newEvent(core.DiffNew, "b2", 310)}})
	second.Push(core.BookMessage{MessageID: 5, Updates: []core.DiffEvent{newEvent(core.DiffRemoved, "b2", 0)}})
	second.Push(core.BookMessage{MessageID: 6, Updates: []core.DiffEvent{newEvent(core.DiffNew, "b3", 295)}})

	price, err := monitor.Await(context.Background(), core.SideSell, BandParams{
		Depreciation: decimal.NewFromFloat(0.01),
	})
	require.NoError(t, err)

	// The ratchet restarted from the second snapshot: the 300 best ask
	// seeded the band at 297 and 295 dropped through it.
	assert.True(t, price.Equal(decimal.NewFromInt(295)))
	assert.Equal(t, 2, dialer.OpenCount())

	alerts := notifier.TitlesContaining("feed dropped")
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Critical)
}

func TestAwaitHonorsContextCancel(t *testing.T) {
	stream := mock.NewMockBookStream(1)
	dialer := mock.NewMockStreamDialer(stream)
	monitor, _ := newTestMonitor(dialer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := monitor.Await(ctx, core.SideSell, BandParams{
			Depreciation: decimal.NewFromFloat(0.01),
		})
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return after cancel")
	}
}

func TestAwaitIgnoresOppositeSide(t *testing.T) {
	stream := mock.NewMockBookStream(10)
	dialer := mock.NewMockStreamDialer(stream)
	monitor, _ := newTestMonitor(dialer)

	bidEvent := core.DiffEvent{Side: core.SideBuy, Kind: core.DiffNew, ID: "x1"}
	p := decimal.NewFromFloat(100)
	q := decimal.NewFromInt(1)
	bidEvent.Price = &p
	bidEvent.Quantity = &q

	stream.Push(core.BookMessage{
		MessageID: 1,
		Snapshot:  &core.BookSnapshot{Asks: []core.PriceLevel{askLevel("a1", 210)}},
	})
	// Bid traffic must not drive the ask-side ratchet.
	stream.Push(core.BookMessage{MessageID: 2, Updates: []core.DiffEvent{bidEvent}})
	stream.Push(core.BookMessage{MessageID: 3, Updates: []core.DiffEvent{newEvent(core.DiffNew, "a2", 205)}})
	stream.Push(core.BookMessage{MessageID: 4, Updates: []core.DiffEvent{newEvent(core.DiffRemoved, "a2", 0)}})
	stream.Push(core.BookMessage{MessageID: 5, Updates: []core.DiffEvent{newEvent(core.DiffNew, "a3", 200)}})

	price, err := monitor.Await(context.Background(), core.SideSell, BandParams{
		Depreciation: decimal.NewFromFloat(0.01),
	})
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(200)))
}
