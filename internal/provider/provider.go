// Package provider supplies market snapshots, daily history, the benchmark
// index and second-pass confirmation data.
package provider

import (
	"context"

	"alphahunter/internal/models"
)

// MarketData is the data source used by the pipeline, the ranker and the
// risk monitor. History must return candles oldest first.
type MarketData interface {
	Snapshot(ctx context.Context) ([]models.Snapshot, error)
	History(ctx context.Context, symbol string, lookback int, adjust models.AdjustMode) (models.HistoricalSeries, error)
	IndexQuote(ctx context.Context, symbol string) (models.IndexQuote, error)
	Confirmation(ctx context.Context, symbol string) (models.Confirmation, error)
}

// Universe returns the symbols of a snapshot in order.
func Universe(snapshots []models.Snapshot) []string {
	symbols := make([]string, 0, len(snapshots))
	for _, s := range snapshots {
		symbols = append(symbols, s.Symbol)
	}
	return symbols
}

// Sectors maps symbol to sector name for every snapshot row with a sector.
func Sectors(snapshots []models.Snapshot) map[string]string {
	out := make(map[string]string, len(snapshots))
	for _, s := range snapshots {
		if s.Sector != "" {
			out[s.Symbol] = s.Sector
		}
	}
	return out
}
