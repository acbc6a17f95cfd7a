package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"alphahunter/internal/errors"
	"alphahunter/internal/models"
)

// timeLayout is fixed width so stored UTC strings sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements PositionStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	loc *time.Location
}

// NewSQLiteStore opens (and creates) the database at dbPath.
func NewSQLiteStore(dbPath string, loc *time.Location) (*SQLiteStore, error) {
	if loc == nil {
		loc = time.Local
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, loc: loc}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		entry_price REAL NOT NULL,
		entry_date TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		highest_price REAL NOT NULL,
		grade TEXT NOT NULL,
		atr REAL NOT NULL DEFAULT 0,
		stop_price REAL NOT NULL,
		strategy TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		grade TEXT NOT NULL,
		strategy TEXT NOT NULL DEFAULT '',
		entry_date TEXT NOT NULL,
		exit_date TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		pnl_amount REAL NOT NULL,
		pnl_pct REAL NOT NULL,
		holding_days INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trades_exit_date ON trades(exit_date);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

	CREATE TABLE IF NOT EXISTS recommendations (
		date TEXT NOT NULL,
		symbol TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL,
		score REAL NOT NULL,
		grade TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		rps REAL NOT NULL DEFAULT 0,
		returns TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (date, symbol)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *SQLiteStore) parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(s.loc), nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const positionColumns = "symbol, name, entry_price, entry_date, quantity, highest_price, grade, atr, stop_price, strategy, note, updated_at"

func (s *SQLiteStore) scanPosition(row scanner) (*models.Position, error) {
	var p models.Position
	var grade, entryDate, updatedAt string
	if err := row.Scan(&p.Symbol, &p.Name, &p.EntryPrice, &entryDate, &p.Quantity, &p.HighestPrice,
		&grade, &p.ATR, &p.StopPrice, &p.Strategy, &p.Note, &updatedAt); err != nil {
		return nil, err
	}
	p.Grade = models.Grade(grade)

	var err error
	if p.EntryDate, err = s.parseTime(entryDate); err != nil {
		return nil, fmt.Errorf("failed to parse entry date: %w", err)
	}
	if p.UpdatedAt, err = s.parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &p, nil
}

// GetPosition retrieves the open position for symbol.
func (s *SQLiteStore) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+positionColumns+" FROM positions WHERE symbol = ?", symbol)
	p, err := s.scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

// ListPositions returns all open positions ordered by symbol.
func (s *SQLiteStore) ListPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+positionColumns+" FROM positions ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		p, err := s.scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func upsertPosition(ctx context.Context, db execer, p *models.Position) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			entry_price = excluded.entry_price,
			entry_date = excluded.entry_date,
			quantity = excluded.quantity,
			highest_price = excluded.highest_price,
			grade = excluded.grade,
			atr = excluded.atr,
			stop_price = excluded.stop_price,
			strategy = excluded.strategy,
			note = excluded.note,
			updated_at = excluded.updated_at
	`, p.Symbol, p.Name, p.EntryPrice, formatTime(p.EntryDate), p.Quantity, p.HighestPrice,
		string(p.Grade), p.ATR, p.StopPrice, p.Strategy, p.Note, formatTime(p.UpdatedAt))
	return err
}

// SavePosition inserts or replaces a position.
func (s *SQLiteStore) SavePosition(ctx context.Context, p *models.Position) error {
	if err := upsertPosition(ctx, s.db, p); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

func deletePosition(ctx context.Context, db execer, symbol string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM positions WHERE symbol = ?", symbol)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrPositionNotFound
	}
	return nil
}

// DeletePosition removes the position for symbol.
func (s *SQLiteStore) DeletePosition(ctx context.Context, symbol string) error {
	return deletePosition(ctx, s.db, symbol)
}

func insertTrade(ctx context.Context, db execer, t *models.Trade) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, name, grade, strategy, entry_date, exit_date, entry_price, exit_price, quantity, pnl_amount, pnl_pct, holding_days, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Symbol, t.Name, string(t.Grade), t.Strategy, formatTime(t.EntryDate), formatTime(t.ExitDate),
		t.EntryPrice, t.ExitPrice, t.Quantity, t.PnLAmount, t.PnLPct, t.HoldingDays, t.Reason)
	if err != nil {
		return fmt.Errorf("failed to log trade: %w", err)
	}
	return nil
}

// AppendTrade records a trade.
func (s *SQLiteStore) AppendTrade(ctx context.Context, t *models.Trade) error {
	return insertTrade(ctx, s.db, t)
}

// ListTrades retrieves trades that exited at or after since.
func (s *SQLiteStore) ListTrades(ctx context.Context, since time.Time) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, name, grade, strategy, entry_date, exit_date, entry_price, exit_price, quantity, pnl_amount, pnl_pct, holding_days, reason
		FROM trades WHERE exit_date >= ? ORDER BY exit_date, id
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var grade, entryDate, exitDate string
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Name, &grade, &t.Strategy, &entryDate, &exitDate,
			&t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.PnLAmount, &t.PnLPct, &t.HoldingDays, &t.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Grade = models.Grade(grade)
		if t.EntryDate, err = s.parseTime(entryDate); err != nil {
			return nil, err
		}
		if t.ExitDate, err = s.parseTime(exitDate); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ClosePosition applies a close in one transaction.
func (s *SQLiteStore) ClosePosition(ctx context.Context, symbol string, remaining *models.Position, trade *models.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM positions WHERE symbol = ?", symbol).Scan(&exists)
	if err == sql.ErrNoRows {
		return errors.ErrPositionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read position: %w", err)
	}

	if remaining == nil {
		if err := deletePosition(ctx, tx, symbol); err != nil {
			return err
		}
	} else if err := upsertPosition(ctx, tx, remaining); err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	if err := insertTrade(ctx, tx, trade); err != nil {
		return err
	}
	return tx.Commit()
}

func encodeReturns(returns map[int]float64) (string, error) {
	if len(returns) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(returns)
	return string(b), err
}

func decodeReturns(v []byte) (map[int]float64, error) {
	var out map[int]float64
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// SaveRecommendations upserts the rows in one transaction.
func (s *SQLiteStore) SaveRecommendations(ctx context.Context, recs []models.Recommendation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range recs {
		returns, err := encodeReturns(r.Returns)
		if err != nil {
			return fmt.Errorf("failed to encode returns: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recommendations (date, symbol, name, price, score, grade, category, rps, returns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date, symbol) DO UPDATE SET
				name = excluded.name,
				price = excluded.price,
				score = excluded.score,
				grade = excluded.grade,
				category = excluded.category,
				rps = excluded.rps
		`, formatTime(r.Date), r.Symbol, r.Name, r.Price, r.Score, string(r.Grade), string(r.Category), r.RPS, returns)
		if err != nil {
			return fmt.Errorf("failed to save recommendation: %w", err)
		}
	}
	return tx.Commit()
}

// ListRecommendations retrieves rows dated at or after since.
func (s *SQLiteStore) ListRecommendations(ctx context.Context, since time.Time) ([]models.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, symbol, name, price, score, grade, category, rps, returns
		FROM recommendations WHERE date >= ? ORDER BY date, symbol
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		var r models.Recommendation
		var date, grade, category, returns string
		if err := rows.Scan(&date, &r.Symbol, &r.Name, &r.Price, &r.Score, &grade, &category, &r.RPS, &returns); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		r.Grade = models.Grade(grade)
		r.Category = models.Category(category)
		if r.Date, err = s.parseTime(date); err != nil {
			return nil, err
		}
		if r.Returns, err = decodeReturns([]byte(returns)); err != nil {
			return nil, fmt.Errorf("failed to decode returns: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// UpdateReturns replaces the returns of one row.
func (s *SQLiteStore) UpdateReturns(ctx context.Context, date time.Time, symbol string, returns map[int]float64) error {
	encoded, err := encodeReturns(returns)
	if err != nil {
		return fmt.Errorf("failed to encode returns: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE recommendations SET returns = ? WHERE date = ? AND symbol = ?",
		encoded, formatTime(date), symbol)
	if err != nil {
		return fmt.Errorf("failed to update returns: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotRecommended
	}
	return nil
}

// DeleteRecommendationsBefore drops rows dated before cutoff.
func (s *SQLiteStore) DeleteRecommendationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recommendations WHERE date < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete recommendations: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Ping checks the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
