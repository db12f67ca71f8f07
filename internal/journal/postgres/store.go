// Package postgres implements the journal on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alphasquare/triarb/internal/domain"
	"github.com/alphasquare/triarb/internal/journal"
)

// schema creates the journal tables when absent. Kept inline: two tables do
// not warrant a migration framework.
const schema = `
CREATE TABLE IF NOT EXISTS chances (
	id           TEXT PRIMARY KEY,
	profit       NUMERIC NOT NULL,
	leg0_symbol  TEXT NOT NULL,
	leg1_symbol  TEXT NOT NULL,
	leg2_symbol  TEXT NOT NULL,
	detected_at  TIMESTAMPTZ NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS orders (
	client_oid   TEXT PRIMARY KEY,
	order_id     TEXT,
	chance_id    TEXT,
	leg_index    INT NOT NULL,
	kind         TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	price        NUMERIC,
	volume       NUMERIC,
	success      BOOLEAN NOT NULL,
	message      TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Store is a pgx-backed journal.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool with the given DSN and ensures the schema exists.
func New(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal/postgres: ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// RecordChance inserts one detected chance.
func (s *Store) RecordChance(ctx context.Context, chance domain.TriangularArbitrageChance) error {
	const query = `
		INSERT INTO chances (id, profit, leg0_symbol, leg1_symbol, leg2_symbol, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		chance.ID,
		chance.Profit.String(),
		chance.Actions[0].Symbol,
		chance.Actions[1].Symbol,
		chance.Actions[2].Symbol,
		chance.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("journal/postgres: record chance %s: %w", chance.ID, err)
	}
	return nil
}

// RecordOrder inserts one emitted order command and its result.
func (s *Store) RecordOrder(ctx context.Context, cmd domain.OrderCommand, result domain.OrderResult) error {
	const query = `
		INSERT INTO orders (
			client_oid, order_id, chance_id, leg_index, kind, symbol, side,
			price, volume, success, message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (client_oid) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		cmd.ClientOID,
		result.OrderID,
		cmd.ChanceID,
		cmd.LegIndex,
		string(cmd.Kind),
		cmd.Symbol,
		string(cmd.Side),
		cmd.Price.String(),
		cmd.Volume.String(),
		result.Success,
		result.Message,
		cmd.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal/postgres: record order %s: %w", cmd.ClientOID, err)
	}
	return nil
}

// Compile-time interface check.
var _ journal.Writer = (*Store)(nil)
