package storage

import (
	"context"
	"fmt"

	"github.com/networth-tracker/internal/models"
)

// OffchainRepository handles manual off-chain balance entries
type OffchainRepository struct {
	db *PostgresDB
}

// NewOffchainRepository creates a new offchain balance repository
func NewOffchainRepository(db *PostgresDB) *OffchainRepository {
	return &OffchainRepository{db: db}
}

// Upsert inserts a new entry (ID == 0) or replaces an existing one.
func (r *OffchainRepository) Upsert(ctx context.Context, entry *models.OffchainBalance) error {
	if entry.ID == 0 {
		query := `
			INSERT INTO offchain_balances (account_id, name, eth_value)
			VALUES ($1, $2, $3)
			RETURNING id, created_at
		`
		err := r.db.Pool().QueryRow(ctx, query, entry.AccountID, entry.Name, entry.EthValue).
			Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert offchain balance: %w", err)
		}
		return nil
	}

	query := `
		UPDATE offchain_balances
		SET account_id = $2, name = $3, eth_value = $4
		WHERE id = $1
	`
	if _, err := r.db.Pool().Exec(ctx, query, entry.ID, entry.AccountID, entry.Name, entry.EthValue); err != nil {
		return fmt.Errorf("failed to update offchain balance: %w", err)
	}

	return nil
}

// List retrieves all offchain entries ordered by account
func (r *OffchainRepository) List(ctx context.Context) ([]*models.OffchainBalance, error) {
	query := `
		SELECT id, account_id, name, eth_value, created_at
		FROM offchain_balances
		ORDER BY account_id, id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query offchain balances: %w", err)
	}
	defer rows.Close()

	var entries []*models.OffchainBalance
	for rows.Next() {
		var entry models.OffchainBalance
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Name, &entry.EthValue, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan offchain balance row: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offchain balance rows: %w", err)
	}

	return entries, nil
}

// Delete removes an offchain entry by id
func (r *OffchainRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM offchain_balances WHERE id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete offchain balance: %w", err)
	}

	return nil
}
