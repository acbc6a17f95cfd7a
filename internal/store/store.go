// Package store persists open positions and the trade archive.
package store

import (
	"context"
	"fmt"
	"time"

	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/models"
)

// PositionStore holds at most one position per symbol and an append-only
// trade archive. GetPosition and DeletePosition return
// errors.ErrPositionNotFound for unknown symbols.
type PositionStore interface {
	GetPosition(ctx context.Context, symbol string) (*models.Position, error)
	ListPositions(ctx context.Context) ([]models.Position, error)
	// SavePosition inserts or replaces the position for its symbol.
	SavePosition(ctx context.Context, p *models.Position) error
	DeletePosition(ctx context.Context, symbol string) error

	// AppendTrade assigns an ID when the trade has none.
	AppendTrade(ctx context.Context, t *models.Trade) error
	// ListTrades returns trades that exited at or after since, oldest first.
	ListTrades(ctx context.Context, since time.Time) ([]models.Trade, error)

	// ClosePosition atomically replaces the position with remaining, or
	// deletes it when remaining is nil, and appends the trade.
	ClosePosition(ctx context.Context, symbol string, remaining *models.Position, trade *models.Trade) error

	// SaveRecommendations upserts by (date, symbol). Returns already
	// recorded for a row are kept.
	SaveRecommendations(ctx context.Context, recs []models.Recommendation) error
	// ListRecommendations returns rows dated at or after since, ordered by
	// date then symbol.
	ListRecommendations(ctx context.Context, since time.Time) ([]models.Recommendation, error)
	// UpdateReturns replaces the returns of one row.
	UpdateReturns(ctx context.Context, date time.Time, symbol string, returns map[int]float64) error
	// DeleteRecommendationsBefore drops rows dated before cutoff.
	DeleteRecommendationsBefore(ctx context.Context, cutoff time.Time) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open builds the configured store. Times read back are converted to loc.
// Connection and schema failures wrap errors.ErrDatabaseError.
func Open(ctx context.Context, cfg config.StoreConfig, loc *time.Location) (PositionStore, error) {
	var (
		st  PositionStore
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		st, err = NewSQLiteStore(cfg.Path, loc)
	case "postgres":
		st, err = NewPostgresStore(ctx, cfg.DSN, DefaultPoolConfig(), loc)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", errors.ErrConfigInvalid, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseError, err)
	}
	return st, nil
}
