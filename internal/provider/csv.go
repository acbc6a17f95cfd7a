package provider

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"alphahunter/internal/errors"
	"alphahunter/internal/models"
)

type snapshotRow struct {
	Symbol        string  `csv:"symbol"`
	Name          string  `csv:"name"`
	Sector        string  `csv:"sector"`
	Price         float64 `csv:"price"`
	Open          float64 `csv:"open"`
	High          float64 `csv:"high"`
	Low           float64 `csv:"low"`
	PrevClose     float64 `csv:"prev_close"`
	ChangePct     float64 `csv:"change_pct"`
	TurnoverPct   float64 `csv:"turnover_pct"`
	VolumeRatio   float64 `csv:"volume_ratio"`
	Amplitude     float64 `csv:"amplitude"`
	PE            float64 `csv:"pe"`
	PB            float64 `csv:"pb"`
	MarketCap     float64 `csv:"market_cap"`
	MainNetInflow float64 `csv:"main_net_inflow"`
}

type candleRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
}

type indexRow struct {
	Symbol    string  `csv:"symbol"`
	Price     float64 `csv:"price"`
	ChangePct float64 `csv:"change_pct"`
}

type confirmRow struct {
	Symbol               string  `csv:"symbol"`
	LateNetInflowRatio   float64 `csv:"late_net_inflow_ratio"`
	LateConcentration    float64 `csv:"late_concentration"`
	ShareholderChangePct float64 `csv:"shareholder_change_pct"`
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", "20060102"}

// CSVProvider reads market data from a directory laid out as
//
//	snapshot.csv
//	index.csv
//	confirm.csv
//	history/<symbol>.csv          forward-adjusted daily candles
//	history/<symbol>.<mode>.csv   optional, for other adjust modes
//
// Files are re-read on every call so an external job can refresh them.
type CSVProvider struct {
	dir string
	loc *time.Location
}

// NewCSVProvider creates a provider rooted at dir. Dates are interpreted in loc.
func NewCSVProvider(dir string, loc *time.Location) *CSVProvider {
	if loc == nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	return &CSVProvider{dir: dir, loc: loc}
}

func readCSV[T any](path string) ([]*T, time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	var modTime time.Time
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}

	var rows []*T
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, modTime, errors.Wrapf(err, "parsing %s", filepath.Base(path))
	}
	return rows, modTime, nil
}

func notFound(dataType, symbol string, err error) error {
	if os.IsNotExist(err) {
		return errors.NewDataError(dataType, symbol, "no data file", errors.ErrSymbolNotFound)
	}
	return errors.NewDataError(dataType, symbol, "read failed", err)
}

// Snapshot returns every row of snapshot.csv sorted by symbol. Change and
// amplitude are derived from prices when the file leaves them empty.
func (p *CSVProvider) Snapshot(ctx context.Context) ([]models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, modTime, err := readCSV[snapshotRow](filepath.Join(p.dir, "snapshot.csv"))
	if err != nil {
		return nil, notFound("snapshot", "", err)
	}

	out := make([]models.Snapshot, 0, len(rows))
	for _, r := range rows {
		if r == nil || strings.TrimSpace(r.Symbol) == "" {
			continue
		}
		s := models.Snapshot{
			Symbol:        strings.TrimSpace(r.Symbol),
			Name:          strings.TrimSpace(r.Name),
			Sector:        strings.TrimSpace(r.Sector),
			Price:         r.Price,
			Open:          r.Open,
			High:          r.High,
			Low:           r.Low,
			PrevClose:     r.PrevClose,
			ChangePct:     r.ChangePct,
			TurnoverPct:   r.TurnoverPct,
			VolumeRatio:   r.VolumeRatio,
			Amplitude:     r.Amplitude,
			Bullish:       r.Price > r.Open,
			PE:            r.PE,
			PB:            r.PB,
			MarketCap:     r.MarketCap,
			MainNetInflow: r.MainNetInflow,
			Timestamp:     modTime.In(p.loc),
		}
		if s.PrevClose > 0 {
			if s.ChangePct == 0 {
				s.ChangePct = (s.Price - s.PrevClose) / s.PrevClose * 100
			}
			if s.Amplitude == 0 && s.High > 0 {
				s.Amplitude = (s.High - s.Low) / s.PrevClose
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// History returns up to lookback most recent candles for symbol.
func (p *CSVProvider) History(ctx context.Context, symbol string, lookback int, adjust models.AdjustMode) (models.HistoricalSeries, error) {
	series := models.HistoricalSeries{Symbol: symbol}
	if err := ctx.Err(); err != nil {
		return series, err
	}

	paths := []string{filepath.Join(p.dir, "history", symbol+".csv")}
	if adjust != models.AdjustForward {
		mode := string(adjust)
		if mode == "" {
			mode = "none"
		}
		paths = append([]string{filepath.Join(p.dir, "history", symbol+"."+mode+".csv")}, paths...)
	}

	var rows []*candleRow
	var err error
	for _, path := range paths {
		rows, _, err = readCSV[candleRow](path)
		if err == nil {
			break
		}
	}
	if err != nil {
		return series, notFound("history", symbol, err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		ts, err := p.parseDate(r.Date)
		if err != nil {
			return series, errors.NewDataError("history", symbol, "bad date "+r.Date, err)
		}
		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })

	if lookback > 0 && len(candles) > lookback {
		candles = candles[len(candles)-lookback:]
	}
	series.Candles = candles
	return series, nil
}

// IndexQuote returns the row of index.csv for symbol.
func (p *CSVProvider) IndexQuote(ctx context.Context, symbol string) (models.IndexQuote, error) {
	if err := ctx.Err(); err != nil {
		return models.IndexQuote{}, err
	}
	rows, modTime, err := readCSV[indexRow](filepath.Join(p.dir, "index.csv"))
	if err != nil {
		return models.IndexQuote{}, notFound("index", symbol, err)
	}
	for _, r := range rows {
		if r != nil && strings.TrimSpace(r.Symbol) == symbol {
			return models.IndexQuote{
				Symbol:    symbol,
				Price:     r.Price,
				ChangePct: r.ChangePct,
				Timestamp: modTime.In(p.loc),
			}, nil
		}
	}
	return models.IndexQuote{}, errors.NewDataError("index", symbol, "not in index.csv", errors.ErrSymbolNotFound)
}

// Confirmation returns the row of confirm.csv for symbol.
func (p *CSVProvider) Confirmation(ctx context.Context, symbol string) (models.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return models.Confirmation{}, err
	}
	rows, _, err := readCSV[confirmRow](filepath.Join(p.dir, "confirm.csv"))
	if err != nil {
		return models.Confirmation{}, notFound("confirmation", symbol, err)
	}
	for _, r := range rows {
		if r != nil && strings.TrimSpace(r.Symbol) == symbol {
			return models.Confirmation{
				Symbol:               symbol,
				LateNetInflowRatio:   r.LateNetInflowRatio,
				LateConcentration:    r.LateConcentration,
				ShareholderChangePct: r.ShareholderChangePct,
			}, nil
		}
	}
	return models.Confirmation{}, errors.NewDataError("confirmation", symbol, "not in confirm.csv", errors.ErrSymbolNotFound)
}

func (p *CSVProvider) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, p.loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
