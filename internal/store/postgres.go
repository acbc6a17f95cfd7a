package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"alphahunter/internal/errors"
	"alphahunter/internal/models"
)

// PoolConfig sizes the PostgreSQL connection pool.
type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:          10,
		MinConns:          1,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
	}
}

// PostgresStore implements PositionStore on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPostgresStore connects, pings and migrates.
func NewPostgresStore(ctx context.Context, dsn string, cfg PoolConfig, loc *time.Location) (*PostgresStore, error) {
	if loc == nil {
		loc = time.Local
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &PostgresStore{pool: pool, loc: loc}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`create table if not exists positions (
			symbol text primary key,
			name text not null default '',
			entry_price double precision not null,
			entry_date timestamptz not null,
			quantity int not null,
			highest_price double precision not null,
			grade text not null,
			atr double precision not null default 0,
			stop_price double precision not null,
			strategy text not null default '',
			note text not null default '',
			updated_at timestamptz not null
		);`,
		`create table if not exists trades (
			id text primary key,
			symbol text not null,
			name text not null default '',
			grade text not null,
			strategy text not null default '',
			entry_date timestamptz not null,
			exit_date timestamptz not null,
			entry_price double precision not null,
			exit_price double precision not null,
			quantity int not null,
			pnl_amount double precision not null,
			pnl_pct double precision not null,
			holding_days int not null,
			reason text not null default '',
			created_at timestamptz not null default now()
		);`,
		`create index if not exists idx_trades_exit_date on trades(exit_date);`,
		`create table if not exists recommendations (
			date timestamptz not null,
			symbol text not null,
			name text not null default '',
			price double precision not null,
			score double precision not null,
			grade text not null,
			category text not null default '',
			rps double precision not null default 0,
			returns jsonb not null default '{}',
			primary key (date, symbol)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// pgExecer is satisfied by *pgxpool.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) scanPosition(row pgx.Row) (*models.Position, error) {
	var p models.Position
	var grade string
	if err := row.Scan(&p.Symbol, &p.Name, &p.EntryPrice, &p.EntryDate, &p.Quantity, &p.HighestPrice,
		&grade, &p.ATR, &p.StopPrice, &p.Strategy, &p.Note, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Grade = models.Grade(grade)
	p.EntryDate = p.EntryDate.In(s.loc)
	p.UpdatedAt = p.UpdatedAt.In(s.loc)
	return &p, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	row := s.pool.QueryRow(ctx, `select `+positionColumns+` from positions where symbol = $1`, symbol)
	p, err := s.scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx, `select `+positionColumns+` from positions order by symbol`)
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

func pgUpsertPosition(ctx context.Context, db pgExecer, p *models.Position) error {
	_, err := db.Exec(ctx, `
		insert into positions (`+positionColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		on conflict (symbol) do update set
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
	`, p.Symbol, p.Name, p.EntryPrice, p.EntryDate, p.Quantity, p.HighestPrice,
		string(p.Grade), p.ATR, p.StopPrice, p.Strategy, p.Note, p.UpdatedAt)
	return err
}

func (s *PostgresStore) SavePosition(ctx context.Context, p *models.Position) error {
	if err := pgUpsertPosition(ctx, s.pool, p); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

func pgDeletePosition(ctx context.Context, db pgExecer, symbol string) error {
	tag, err := db.Exec(ctx, `delete from positions where symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrPositionNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePosition(ctx context.Context, symbol string) error {
	return pgDeletePosition(ctx, s.pool, symbol)
}

func pgInsertTrade(ctx context.Context, db pgExecer, t *models.Trade) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := db.Exec(ctx, `
		insert into trades (id, symbol, name, grade, strategy, entry_date, exit_date, entry_price, exit_price, quantity, pnl_amount, pnl_pct, holding_days, reason)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, t.ID, t.Symbol, t.Name, string(t.Grade), t.Strategy, t.EntryDate, t.ExitDate,
		t.EntryPrice, t.ExitPrice, t.Quantity, t.PnLAmount, t.PnLPct, t.HoldingDays, t.Reason)
	if err != nil {
		return fmt.Errorf("failed to log trade: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendTrade(ctx context.Context, t *models.Trade) error {
	return pgInsertTrade(ctx, s.pool, t)
}

func (s *PostgresStore) ListTrades(ctx context.Context, since time.Time) ([]models.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		select id, symbol, name, grade, strategy, entry_date, exit_date, entry_price, exit_price, quantity, pnl_amount, pnl_pct, holding_days, reason
		from trades where exit_date >= $1 order by exit_date, id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var grade string
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Name, &grade, &t.Strategy, &t.EntryDate, &t.ExitDate,
			&t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.PnLAmount, &t.PnLPct, &t.HoldingDays, &t.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Grade = models.Grade(grade)
		t.EntryDate = t.EntryDate.In(s.loc)
		t.ExitDate = t.ExitDate.In(s.loc)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) ClosePosition(ctx context.Context, symbol string, remaining *models.Position, trade *models.Trade) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// lock the row so a concurrent close cannot archive the same shares
	var exists int
	err = tx.QueryRow(ctx, `select 1 from positions where symbol = $1 for update`, symbol).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.ErrPositionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read position: %w", err)
	}

	if remaining == nil {
		if err := pgDeletePosition(ctx, tx, symbol); err != nil {
			return err
		}
	} else if err := pgUpsertPosition(ctx, tx, remaining); err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	if err := pgInsertTrade(ctx, tx, trade); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveRecommendations upserts the rows in one batch.
func (s *PostgresStore) SaveRecommendations(ctx context.Context, recs []models.Recommendation) error {
	batch := &pgx.Batch{}
	for _, r := range recs {
		returns, err := encodeReturns(r.Returns)
		if err != nil {
			return fmt.Errorf("failed to encode returns: %w", err)
		}
		batch.Queue(`
			insert into recommendations (date, symbol, name, price, score, grade, category, rps, returns)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb)
			on conflict (date, symbol) do update set
				name = excluded.name,
				price = excluded.price,
				score = excluded.score,
				grade = excluded.grade,
				category = excluded.category,
				rps = excluded.rps
		`, r.Date, r.Symbol, r.Name, r.Price, r.Score, string(r.Grade), string(r.Category), r.RPS, returns)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save recommendations: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecommendations(ctx context.Context, since time.Time) ([]models.Recommendation, error) {
	rows, err := s.pool.Query(ctx, `
		select date, symbol, name, price, score, grade, category, rps, returns::text
		from recommendations where date >= $1 order by date, symbol
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		var r models.Recommendation
		var grade, category, returns string
		if err := rows.Scan(&r.Date, &r.Symbol, &r.Name, &r.Price, &r.Score, &grade, &category, &r.RPS, &returns); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		r.Grade = models.Grade(grade)
		r.Category = models.Category(category)
		r.Date = r.Date.In(s.loc)
		if r.Returns, err = decodeReturns([]byte(returns)); err != nil {
			return nil, fmt.Errorf("failed to decode returns: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) UpdateReturns(ctx context.Context, date time.Time, symbol string, returns map[int]float64) error {
	encoded, err := encodeReturns(returns)
	if err != nil {
		return fmt.Errorf("failed to encode returns: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `update recommendations set returns = $1::jsonb where date = $2 and symbol = $3`,
		encoded, date, symbol)
	if err != nil {
		return fmt.Errorf("failed to update returns: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrNotRecommended
	}
	return nil
}

func (s *PostgresStore) DeleteRecommendationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `delete from recommendations where date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete recommendations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
