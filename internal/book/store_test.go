package book_test

import (
	"sync"
	"testing"

	"github.com/alejandrodnm/polymaker/internal/book"
	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstrument() domain.Instrument {
	return domain.Instrument{MarketID: "m1", TokenA: "yes", TokenB: "no", TickSize: 0.01, MinSize: 5}
}

func newStore(t *testing.T) *book.Store {
	t.Helper()
	s := book.NewStore()
	s.Register(testInstrument())
	return s
}

func TestStore_SnapshotReplacesBook(t *testing.T) {
	s := newStore(t)

	_, err := s.ApplyBookSnapshot(domain.BookSnapshot{
		Token: "yes",
		Bids:  []domain.BookEntry{{Price: 0.40, Size: 5}, {Price: 0.45, Size: 10}},
		Asks:  []domain.BookEntry{{Price: 0.60, Size: 3}, {Price: 0.55, Size: 8}},
	})
	require.NoError(t, err)

	market, err := s.ApplyBookSnapshot(domain.BookSnapshot{
		Token: "yes",
		Bids:  []domain.BookEntry{{Price: 0.30, Size: 1}},
		Asks:  []domain.BookEntry{{Price: 0.70, Size: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", market)

	ob, ok := s.Book("m1")
	require.True(t, ok)
	require.Len(t, ob.Bids, 1)
	require.Len(t, ob.Asks, 1)
	assert.InDelta(t, 0.30, ob.BestBid(), 1e-9)
	assert.InDelta(t, 0.70, ob.BestAsk(), 1e-9)
}

func TestStore_SnapshotOrdersLevels(t *testing.T) {
	s := newStore(t)
	_, err := s.ApplyBookSnapshot(domain.BookSnapshot{
		Token: "yes",
		Bids:  []domain.BookEntry{{Price: 0.40, Size: 5}, {Price: 0.45, Size: 10}, {Price: 0.42, Size: 1}},
		Asks:  []domain.BookEntry{{Price: 0.60, Size: 3}, {Price: 0.55, Size: 8}},
	})
	require.NoError(t, err)

	ob, _ := s.Book("m1")
	assert.InDelta(t, 0.45, ob.Bids[0].Price, 1e-9)
	assert.InDelta(t, 0.42, ob.Bids[1].Price, 1e-9)
	assert.InDelta(t, 0.40, ob.Bids[2].Price, 1e-9)
	assert.InDelta(t, 0.55, ob.Asks[0].Price, 1e-9)
	assert.InDelta(t, 0.60, ob.Asks[1].Price, 1e-9)
}

func TestStore_PriceChangeUpsertAndDelete(t *testing.T) {
	s := newStore(t)

	_, err := s.ApplyPriceChange(domain.PriceChange{Token: "yes", Side: domain.Buy, Price: 0.45, Size: 10})
	require.NoError(t, err)
	_, err = s.ApplyPriceChange(domain.PriceChange{Token: "yes", Side: domain.Buy, Price: 0.45, Size: 25})
	require.NoError(t, err)

	ob, ok := s.Book("m1")
	require.True(t, ok)
	require.Len(t, ob.Bids, 1)
	assert.InDelta(t, 25, ob.Bids[0].Size, 1e-9)

	_, err = s.ApplyPriceChange(domain.PriceChange{Token: "yes", Side: domain.Buy, Price: 0.45, Size: 0})
	require.NoError(t, err)
	ob, _ = s.Book("m1")
	assert.Empty(t, ob.Bids)
}

func TestStore_ComplementEventsAreInverted(t *testing.T) {
	s := newStore(t)

	// bid de "no" a 0.30 = ask de "yes" a 0.70
	_, err := s.ApplyPriceChange(domain.PriceChange{Token: "no", Side: domain.Buy, Price: 0.30, Size: 7})
	require.NoError(t, err)
	_, err = s.ApplyBookSnapshot(domain.BookSnapshot{
		Token: "no",
		Bids:  []domain.BookEntry{{Price: 0.35, Size: 4}},
		Asks:  []domain.BookEntry{{Price: 0.40, Size: 9}},
	})
	require.NoError(t, err)

	ob, ok := s.Book("m1")
	require.True(t, ok)
	require.Len(t, ob.Asks, 1)
	require.Len(t, ob.Bids, 1)
	assert.InDelta(t, 0.65, ob.Asks[0].Price, 1e-9)
	assert.InDelta(t, 4, ob.Asks[0].Size, 1e-9)
	assert.InDelta(t, 0.60, ob.Bids[0].Price, 1e-9)
	assert.InDelta(t, 9, ob.Bids[0].Size, 1e-9)
}

func TestStore_DropsMalformedEvents(t *testing.T) {
	tests := []struct {
		name string
		ev   domain.PriceChange
		want error
	}{
		{"missing token", domain.PriceChange{Side: domain.Buy, Price: 0.5, Size: 1}, domain.ErrMissingToken},
		{"unknown token", domain.PriceChange{Token: "zzz", Side: domain.Buy, Price: 0.5, Size: 1}, domain.ErrUnknownToken},
		{"negative size", domain.PriceChange{Token: "yes", Side: domain.Buy, Price: 0.5, Size: -1}, domain.ErrInvalidLevel},
		{"price out of range", domain.PriceChange{Token: "yes", Side: domain.Sell, Price: 1.5, Size: 1}, domain.ErrInvalidLevel},
		{"no side", domain.PriceChange{Token: "yes", Price: 0.5, Size: 1}, domain.ErrInvalidLevel},
	}

	s := newStore(t)
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			market, err := s.ApplyPriceChange(tc.ev)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, market)
			assert.Equal(t, int64(i+1), s.Dropped())
		})
	}

	_, ok := s.Book("m1")
	assert.False(t, ok, "dropped events must not touch the book")
}

func TestStore_SnapshotForUnknownTokenIsDropped(t *testing.T) {
	s := newStore(t)
	_, err := s.ApplyBookSnapshot(domain.BookSnapshot{Token: "other", Bids: []domain.BookEntry{{Price: 0.5, Size: 1}}})
	assert.ErrorIs(t, err, domain.ErrUnknownToken)
	assert.Equal(t, int64(1), s.Dropped())
}

func TestStore_UnregisterForgetsTokens(t *testing.T) {
	s := newStore(t)
	s.Unregister(testInstrument())

	_, ok := s.MarketOf("yes")
	assert.False(t, ok)
	_, err := s.ApplyPriceChange(domain.PriceChange{Token: "yes", Side: domain.Buy, Price: 0.5, Size: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownToken)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := newStore(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 1; i <= 50; i++ {
				token := "yes"
				if g%2 == 1 {
					token = "no"
				}
				_, _ = s.ApplyPriceChange(domain.PriceChange{Token: token, Side: domain.Buy, Price: float64(i) / 100, Size: float64(g + 1)})
				_, _ = s.Analyze("yes", 1, 0.1)
			}
		}(g)
	}
	wg.Wait()

	ob, ok := s.Book("m1")
	require.True(t, ok)
	assert.Len(t, ob.Bids, 50)
	assert.Len(t, ob.Asks, 50)
}
