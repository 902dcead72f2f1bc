package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeVenue mantiene un libro de órdenes abiertas como lo haría el exchange.
type fakeVenue struct {
	mu        sync.Mutex
	seq       int
	attempts  []domain.OrderRequest
	open      map[string]domain.OpenOrder
	cancelled []string
	cancelAll []string
	positions []domain.VenuePosition
	submitErr map[string]error // por token
	cancelErr error
	readErr   error
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{open: make(map[string]domain.OpenOrder), submitErr: make(map[string]error)}
}

func (v *fakeVenue) SubmitOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.attempts = append(v.attempts, req)
	if err := v.submitErr[req.Token]; err != nil {
		return "", err
	}
	v.seq++
	id := fmt.Sprintf("0xorder%d", v.seq)
	v.open[id] = domain.OpenOrder{OrderID: id, Token: req.Token, Side: req.Side, Price: req.Price, Size: req.Size}
	return id, nil
}

func (v *fakeVenue) CancelOrder(_ context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancelErr != nil {
		return v.cancelErr
	}
	v.cancelled = append(v.cancelled, orderID)
	delete(v.open, orderID)
	return nil
}

func (v *fakeVenue) CancelAllForToken(_ context.Context, token string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancelErr != nil {
		return v.cancelErr
	}
	v.cancelAll = append(v.cancelAll, token)
	for id, o := range v.open {
		if o.Token == token {
			delete(v.open, id)
		}
	}
	return nil
}

func (v *fakeVenue) GetPositions(context.Context) ([]domain.VenuePosition, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.readErr != nil {
		return nil, v.readErr
	}
	return append([]domain.VenuePosition(nil), v.positions...), nil
}

func (v *fakeVenue) GetOpenOrders(context.Context) ([]domain.OpenOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.readErr != nil {
		return nil, v.readErr
	}
	out := make([]domain.OpenOrder, 0, len(v.open))
	for _, o := range v.open {
		out = append(out, o)
	}
	return out, nil
}

func (v *fakeVenue) setSubmitErr(token string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err == nil {
		delete(v.submitErr, token)
		return
	}
	v.submitErr[token] = err
}

func (v *fakeVenue) setPositions(p ...domain.VenuePosition) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positions = p
}

func (v *fakeVenue) submits(token string, side domain.Side) []domain.OrderRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []domain.OrderRequest
	for _, r := range v.attempts {
		if r.Token == token && r.Side == side {
			out = append(out, r)
		}
	}
	return out
}

func (v *fakeVenue) cancelledIDs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.cancelled...)
}

func (v *fakeVenue) cancelledTokens() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.cancelAll...)
}

type fakeMerger struct {
	mu    sync.Mutex
	calls []float64
	err   error
}

func (m *fakeMerger) MergePositions(_ context.Context, amount float64, marketID string, _ bool) (domain.MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, amount)
	if m.err != nil {
		return domain.MergeResult{MarketID: marketID, Error: m.err.Error()}, m.err
	}
	return domain.MergeResult{MarketID: marketID, Amount: amount, TxHash: "0xmerge", Success: true}, nil
}

func (m *fakeMerger) Calls() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.calls...)
}

type fakeRiskOff struct {
	rec   domain.RiskOffRecord
	found bool
	err   error
}

func (f *fakeRiskOff) RiskOff(context.Context, string) (domain.RiskOffRecord, bool, error) {
	return f.rec, f.found, f.err
}

type fakeJournal struct {
	mu     sync.Mutex
	fills  []domain.Fill
	merges []domain.MergeResult
}

func (j *fakeJournal) RecordFill(_ context.Context, f domain.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fills = append(j.fills, f)
	return nil
}

func (j *fakeJournal) RecordMerge(_ context.Context, r domain.MergeResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.merges = append(j.merges, r)
	return nil
}

func (j *fakeJournal) Fills() []domain.Fill {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.Fill(nil), j.fills...)
}

func (j *fakeJournal) Merges() []domain.MergeResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.MergeResult(nil), j.merges...)
}

type staticSource struct {
	insts []domain.Instrument
	err   error
}

func (s *staticSource) Instruments(context.Context) ([]domain.Instrument, error) {
	return s.insts, s.err
}

var errRejected = errors.New("order rejected: not enough balance")
