package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"alphahunter/internal/errors"
	"alphahunter/internal/models"
)

// MemoryStore keeps positions and trades in process. Used by tests and
// dry runs.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]models.Position
	trades    []models.Trade
	recs      map[recKey]models.Recommendation
}

type recKey struct {
	day    string
	symbol string
}

func keyOf(date time.Time, symbol string) recKey {
	return recKey{day: date.Format("2006-01-02"), symbol: symbol}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]models.Position),
		recs:      make(map[recKey]models.Recommendation),
	}
}

func (m *MemoryStore) GetPosition(_ context.Context, symbol string) (*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[symbol]
	if !ok {
		return nil, errors.ErrPositionNotFound
	}
	return &p, nil
}

func (m *MemoryStore) ListPositions(_ context.Context) ([]models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *MemoryStore) SavePosition(_ context.Context, p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Symbol] = *p
	return nil
}

func (m *MemoryStore) DeletePosition(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[symbol]; !ok {
		return errors.ErrPositionNotFound
	}
	delete(m.positions, symbol)
	return nil
}

func (m *MemoryStore) AppendTrade(_ context.Context, t *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendTrade(t)
	return nil
}

func (m *MemoryStore) appendTrade(t *models.Trade) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	m.trades = append(m.trades, *t)
}

func (m *MemoryStore) ListTrades(_ context.Context, since time.Time) ([]models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Trade
	for _, t := range m.trades {
		if !t.ExitDate.Before(since) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExitDate.Before(out[j].ExitDate) })
	return out, nil
}

func (m *MemoryStore) ClosePosition(_ context.Context, symbol string, remaining *models.Position, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[symbol]; !ok {
		return errors.ErrPositionNotFound
	}
	if remaining == nil {
		delete(m.positions, symbol)
	} else {
		m.positions[symbol] = *remaining
	}
	m.appendTrade(trade)
	return nil
}

func (m *MemoryStore) SaveRecommendations(_ context.Context, recs []models.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		k := keyOf(r.Date, r.Symbol)
		if old, ok := m.recs[k]; ok {
			r.Returns = old.Returns
		} else {
			r.Returns = copyReturns(r.Returns)
		}
		m.recs[k] = r
	}
	return nil
}

func (m *MemoryStore) ListRecommendations(_ context.Context, since time.Time) ([]models.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Recommendation
	for _, r := range m.recs {
		if !r.Date.Before(since) {
			r.Returns = copyReturns(r.Returns)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (m *MemoryStore) UpdateReturns(_ context.Context, date time.Time, symbol string, returns map[int]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(date, symbol)
	r, ok := m.recs[k]
	if !ok {
		return errors.ErrNotRecommended
	}
	r.Returns = copyReturns(returns)
	m.recs[k] = r
	return nil
}

func (m *MemoryStore) DeleteRecommendationsBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, r := range m.recs {
		if r.Date.Before(cutoff) {
			delete(m.recs, k)
			n++
		}
	}
	return n, nil
}

func copyReturns(in map[int]float64) map[int]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[int]float64, len(in))
	for h, v := range in {
		out[h] = v
	}
	return out
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
