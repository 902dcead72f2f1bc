package ledger_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestReconcile_OverwritesWhenIdle(t *testing.T) {
	c := newClock()
	l := newLedger(c)

	stats := l.Reconcile(
		[]domain.VenuePosition{{Token: "yes", Size: 42, AvgPrice: 0.41}},
		nil,
		[]string{"yes", "no"},
		c.Now(),
	)

	assert.Equal(t, 1, stats.SizesUpdated)
	assert.Equal(t, 0, stats.SizesSkipped)
	assert.InDelta(t, 42, l.Position("yes").Size, 1e-9)
	assert.InDelta(t, 0.41, l.Position("yes").AvgPrice, 1e-12)
	assert.Zero(t, l.Position("no").Size)
}

func TestReconcile_SkipsSizeWhileInFlight(t *testing.T) {
	c := newClock()
	l := newLedger(c)
	l.ApplyTrade(domain.TradeEvent{TradeID: "t1", Token: "yes", Side: domain.Buy, Price: 0.5, Size: 10, Status: domain.TradeMatched})

	c.Advance(10 * time.Second)
	stats := l.Reconcile([]domain.VenuePosition{{Token: "yes", Size: 0, AvgPrice: 0.48}}, nil, []string{"yes"}, c.Now())

	assert.Equal(t, 1, stats.SizesSkipped)
	assert.InDelta(t, 10, l.Position("yes").Size, 1e-9)
	// avgPrice se refresca igualmente
	assert.InDelta(t, 0.48, l.Position("yes").AvgPrice, 1e-12)
}

func TestReconcile_SkipsSizeRecentlyUpdated(t *testing.T) {
	c := newClock()
	l := newLedger(c)
	l.ApplyFill("yes", domain.Buy, 0.5, 10)

	c.Advance(2 * time.Second)
	l.Reconcile([]domain.VenuePosition{{Token: "yes", Size: 3, AvgPrice: 0.5}}, nil, []string{"yes"}, c.Now())
	assert.InDelta(t, 10, l.Position("yes").Size, 1e-9)

	c.Advance(4 * time.Second)
	l.Reconcile([]domain.VenuePosition{{Token: "yes", Size: 3, AvgPrice: 0.5}}, nil, []string{"yes"}, c.Now())
	assert.InDelta(t, 3, l.Position("yes").Size, 1e-9)
}

func TestReconcile_StaleInFlightDoesNotBlockForever(t *testing.T) {
	c := newClock()
	l := newLedger(c)
	l.ApplyTrade(domain.TradeEvent{TradeID: "lost", Token: "yes", Side: domain.Buy, Price: 0.5, Size: 10, Status: domain.TradeMatched})

	c.Advance(16 * time.Second)
	stats := l.Reconcile([]domain.VenuePosition{{Token: "yes", Size: 7, AvgPrice: 0.5}}, nil, []string{"yes"}, c.Now())

	assert.Equal(t, 1, stats.SizesUpdated)
	assert.InDelta(t, 7, l.Position("yes").Size, 1e-9)
}

func TestReconcile_RebuildsOrdersAndResolvesPending(t *testing.T) {
	c := newClock()
	l := newLedger(c)
	l.MarkPending("yes", domain.Buy)
	l.MarkPending("yes", domain.Sell)

	stats := l.Reconcile(nil, []domain.OpenOrder{
		{OrderID: "o1", Token: "yes", Side: domain.Buy, Price: 0.44, Size: 20},
	}, []string{"yes"}, c.Now())

	assert.Equal(t, 1, stats.OrdersRebuilt)
	buy := l.Order("yes", domain.Buy)
	assert.Equal(t, domain.OrderResting, buy.State)
	assert.Equal(t, "o1", buy.OrderID)
	assert.InDelta(t, 0.44, buy.Price, 1e-9)
	assert.Equal(t, domain.OrderAbsent, l.Order("yes", domain.Sell).State)
}

func TestReconcile_AggregatesDuplicateOrders(t *testing.T) {
	c := newClock()
	l := newLedger(c)
	l.Reconcile(nil, []domain.OpenOrder{
		{OrderID: "o1", Token: "yes", Side: domain.Sell, Price: 0.56, Size: 5},
		{OrderID: "o2", Token: "yes", Side: domain.Sell, Price: 0.55, Size: 15},
	}, []string{"yes"}, c.Now())

	sell := l.Order("yes", domain.Sell)
	assert.Empty(t, sell.OrderID)
	assert.InDelta(t, 0.55, sell.Price, 1e-9)
	assert.InDelta(t, 20, sell.Size, 1e-9)
}

func TestReconcile_KeepsOrdersWithInFlightSubmission(t *testing.T) {
	c := newClock()
	l := newLedger(c)
	id := l.BeginSubmit("yes", domain.Buy)
	l.ConfirmSubmit("yes", domain.Buy, id, "fresh", 0.45, 20)

	stats := l.Reconcile(nil, nil, []string{"yes"}, c.Now())
	assert.Equal(t, 1, stats.OrdersSkipped)
	assert.Equal(t, "fresh", l.Order("yes", domain.Buy).OrderID)
}

func TestReconcile_IgnoresUntrackedTokens(t *testing.T) {
	c := newClock()
	l := newLedger(c)
	l.Reconcile([]domain.VenuePosition{{Token: "other", Size: 99}}, nil, []string{"yes"}, c.Now())
	assert.Zero(t, l.Position("other").Size)
}

func TestReconcile_StaleSnapshotKeepsOrderPlacedDuringFetch(t *testing.T) {
	c := newClock()
	l := newLedger(c)
	fetchedAt := c.Now()

	// la orden se coloca y su colocación se confirma mientras se lee el venue
	c.Advance(300 * time.Millisecond)
	id := l.BeginSubmit("yes", domain.Buy)
	l.ConfirmSubmit("yes", domain.Buy, id, "fresh", 0.45, 20)
	l.ApplyOrderEvent(domain.OrderEvent{OrderID: "fresh", Type: domain.OrderPlacement})

	stats := l.Reconcile(nil, nil, []string{"yes"}, fetchedAt)
	assert.Equal(t, 1, stats.OrdersSkipped)
	buy := l.Order("yes", domain.Buy)
	assert.Equal(t, domain.OrderResting, buy.State)
	assert.Equal(t, "fresh", buy.OrderID)

	// la siguiente lectura ya la ve (o no) y manda el venue
	c.Advance(5 * time.Second)
	l.Reconcile(nil, nil, []string{"yes"}, c.Now())
	assert.Equal(t, domain.OrderAbsent, l.Order("yes", domain.Buy).State)
}

func TestReconcile_StaleSnapshotDoesNotResurrectCancelledOrder(t *testing.T) {
	c := newClock()
	l := newLedger(c)
	l.Reconcile(nil, []domain.OpenOrder{
		{OrderID: "o1", Token: "yes", Side: domain.Sell, Price: 0.56, Size: 5},
	}, []string{"yes"}, c.Now())

	fetchedAt := c.Now()
	c.Advance(200 * time.Millisecond)
	l.ClearToken("yes")

	l.Reconcile(nil, []domain.OpenOrder{
		{OrderID: "o1", Token: "yes", Side: domain.Sell, Price: 0.56, Size: 5},
	}, []string{"yes"}, fetchedAt)
	assert.Equal(t, domain.OrderAbsent, l.Order("yes", domain.Sell).State)
}

func TestReconcile_StaleSnapshotKeepsFreshFillSize(t *testing.T) {
	c := newClock()
	l := newLedger(c)
	fetchedAt := c.Now()

	c.Advance(6 * time.Second)
	l.ApplyFill("yes", domain.Buy, 0.5, 10)
	c.Advance(6 * time.Second)

	stats := l.Reconcile([]domain.VenuePosition{{Token: "yes", Size: 0}}, nil, []string{"yes"}, fetchedAt)
	assert.Equal(t, 1, stats.SizesSkipped)
	assert.InDelta(t, 10, l.Position("yes").Size, 1e-9)
}
