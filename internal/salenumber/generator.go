// Package salenumber allocates day-scoped sale numbers such as V20240115-0007.
package salenumber

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxRepository increments the per-day counter inside the sale transaction.
// The counter row stays locked until the transaction ends, so concurrent
// sales on the same day queue behind each other and a rolled-back sale
// releases its number.
type TxRepository interface {
	NextSaleSequence(ctx context.Context, day time.Time) (int, error)
}

// Generator formats sale numbers in the business time zone.
type Generator struct {
	loc *time.Location
}

// NewGenerator builds Generator. A nil location means UTC.
func NewGenerator(loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{loc: loc}
}

// Location reports the business time zone.
func (g *Generator) Location() *time.Location {
	return g.loc
}

// Day truncates at to midnight of its business day.
func (g *Generator) Day(at time.Time) time.Time {
	local := at.In(g.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc)
}

// Next allocates the next number for the business day containing at.
func (g *Generator) Next(ctx context.Context, tx TxRepository, at time.Time) (string, error) {
	day := g.Day(at)
	seq, err := tx.NextSaleSequence(ctx, day)
	if err != nil {
		return "", fmt.Errorf("salenumber: next sequence: %w", err)
	}
	return Format(day, seq), nil
}

// Format renders V{YYYY}{MM}{DD}-{seq:4}.
func Format(day time.Time, seq int) string {
	return fmt.Sprintf("V%04d%02d%02d-%04d", day.Year(), int(day.Month()), day.Day(), seq)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the counter to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) NextSaleSequence(ctx context.Context, day time.Time) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_number_counters (day, last_seq) VALUES ($1, 1)
ON CONFLICT (day) DO UPDATE SET last_seq = sale_number_counters.last_seq + 1
RETURNING last_seq`, time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)).Scan(&seq)
	return seq, err
}
