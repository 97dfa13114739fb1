package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/types"
)

// BalanceRepository handles balance row storage. Workers are the only
// writers; the aggregation engine is the only reader. The atomic upsert
// on (account_id, token_id) is the concurrency-correctness mechanism:
// two completions of the same coalesced task are idempotent.
type BalanceRepository struct {
	db *PostgresDB
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *PostgresDB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Upsert inserts or replaces the balance row for (account, token).
// Zero amounts are stored too: the row's checked_at keeps tracking.
func (r *BalanceRepository) Upsert(ctx context.Context, balance *models.Balance) error {
	query := `
		INSERT INTO balances (account_id, token_id, amount, eth_value, checked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, token_id)
		DO UPDATE SET
			amount = EXCLUDED.amount,
			eth_value = EXCLUDED.eth_value,
			checked_at = EXCLUDED.checked_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		balance.AccountID,
		balance.TokenID,
		balance.Amount,
		balance.EthValue,
		balance.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}

	return nil
}

// PortfolioBalanceRow is a positive balance joined with its token, chain
// and account metadata, as consumed by the aggregation engine.
type PortfolioBalanceRow struct {
	AccountID    int64
	AccountName  string
	TokenID      int64
	ChainID      types.ChainID
	ChainName    string
	TokenAddress string
	Symbol       string
	TokenName    string
	Decimals     int
	Amount       float64
	EthValue     float64
	CheckedAt    time.Time
}

// ListPositive retrieves all balance rows with amount > 0 joined with
// token, chain and account metadata. Stale zero rows are excluded from
// display without being deleted.
func (r *BalanceRepository) ListPositive(ctx context.Context) ([]*PortfolioBalanceRow, error) {
	query := `
		SELECT
			b.account_id,
			a.name,
			b.token_id,
			t.chain_id,
			c.name,
			t.address,
			t.symbol,
			t.name,
			t.decimals,
			b.amount,
			b.eth_value,
			b.checked_at
		FROM balances b
		JOIN accounts a ON a.id = b.account_id
		JOIN tokens t ON t.id = b.token_id
		JOIN chains c ON c.id = t.chain_id
		WHERE b.amount > 0
		ORDER BY t.chain_id, t.id, b.account_id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var result []*PortfolioBalanceRow
	for rows.Next() {
		var row PortfolioBalanceRow
		err := rows.Scan(
			&row.AccountID,
			&row.AccountName,
			&row.TokenID,
			&row.ChainID,
			&row.ChainName,
			&row.TokenAddress,
			&row.Symbol,
			&row.TokenName,
			&row.Decimals,
			&row.Amount,
			&row.EthValue,
			&row.CheckedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance row: %w", err)
		}
		result = append(result, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}

	return result, nil
}
