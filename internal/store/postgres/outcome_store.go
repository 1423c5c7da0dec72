package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashpath/arbbot/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore using PostgreSQL.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates a new OutcomeStore.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// Record inserts one terminal execution outcome.
func (s *OutcomeStore) Record(ctx context.Context, out domain.ExecutionOutcome) error {
	var profit *string
	if out.RealizedProfit != nil {
		p := out.RealizedProfit.String()
		profit = &p
	}
	var txHash string
	if out.TxHash != (common.Hash{}) {
		txHash = out.TxHash.Hex()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO execution_outcomes (id, request_id, candidate_key, status, realized_profit, reason, tx_hash, block_number, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		out.ID, out.RequestID, out.CandidateKey, string(out.Status),
		profit, out.Reason, txHash, int64(out.Block), out.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution_outcome: %w", err)
	}
	return nil
}

// ListSince returns outcomes resolved at or after the given time, oldest
// first.
func (s *OutcomeStore) ListSince(ctx context.Context, since time.Time) ([]domain.ExecutionOutcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, candidate_key, status, realized_profit, reason, tx_hash, block_number, resolved_at
		FROM execution_outcomes
		WHERE resolved_at >= $1
		ORDER BY resolved_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution_outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate execution_outcomes: %w", err)
	}
	return out, nil
}

// GetByID returns one outcome by its ID.
func (s *OutcomeStore) GetByID(ctx context.Context, id string) (domain.ExecutionOutcome, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, request_id, candidate_key, status, realized_profit, reason, tx_hash, block_number, resolved_at
		FROM execution_outcomes WHERE id = $1`, id)
	o, err := scanOutcome(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExecutionOutcome{}, fmt.Errorf("postgres: outcome %s: %w", id, domain.ErrNotFound)
	}
	return o, err
}

func scanOutcome(row pgx.Row) (domain.ExecutionOutcome, error) {
	var (
		o      domain.ExecutionOutcome
		status string
		profit *string
		txHash string
		block  int64
	)
	err := row.Scan(&o.ID, &o.RequestID, &o.CandidateKey, &status, &profit,
		&o.Reason, &txHash, &block, &o.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionOutcome{}, err
		}
		return domain.ExecutionOutcome{}, fmt.Errorf("postgres: scan execution_outcome: %w", err)
	}
	o.Status = domain.OutcomeStatus(status)
	if profit != nil {
		if p, ok := new(big.Int).SetString(*profit, 10); ok {
			o.RealizedProfit = p
		}
	}
	if txHash != "" {
		o.TxHash = common.HexToHash(txHash)
	}
	o.Block = uint64(block)
	return o, nil
}

// Compile-time interface check.
var _ domain.OutcomeStore = (*OutcomeStore)(nil)
