package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/types"
)

// ChainRepository handles chain configuration storage
type ChainRepository struct {
	db *PostgresDB
}

// NewChainRepository creates a new chain repository
func NewChainRepository(db *PostgresDB) *ChainRepository {
	return &ChainRepository{db: db}
}

// Create stores a new chain configuration
func (r *ChainRepository) Create(ctx context.Context, chain *models.Chain) error {
	query := `
		INSERT INTO chains (id, name, rpc_url, multicall_address)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query, chain.ID, chain.Name, chain.RPCURL, chain.MulticallAddress)
	if err != nil {
		return fmt.Errorf("failed to insert chain: %w", err)
	}

	return nil
}

// GetByID retrieves a chain by its chain id. Returns (nil, nil) when the
// chain is not configured.
func (r *ChainRepository) GetByID(ctx context.Context, id types.ChainID) (*models.Chain, error) {
	query := `
		SELECT id, name, rpc_url, multicall_address, created_at
		FROM chains
		WHERE id = $1
	`

	var chain models.Chain
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&chain.ID,
		&chain.Name,
		&chain.RPCURL,
		&chain.MulticallAddress,
		&chain.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chain: %w", err)
	}

	return &chain, nil
}

// List retrieves all configured chains ordered by id
func (r *ChainRepository) List(ctx context.Context) ([]*models.Chain, error) {
	query := `
		SELECT id, name, rpc_url, multicall_address, created_at
		FROM chains
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}
	defer rows.Close()

	var chains []*models.Chain
	for rows.Next() {
		var chain models.Chain
		if err := rows.Scan(&chain.ID, &chain.Name, &chain.RPCURL, &chain.MulticallAddress, &chain.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chain row: %w", err)
		}
		chains = append(chains, &chain)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chain rows: %w", err)
	}

	return chains, nil
}

// Delete removes a chain configuration. Tokens on the chain cascade.
func (r *ChainRepository) Delete(ctx context.Context, id types.ChainID) error {
	query := `DELETE FROM chains WHERE id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete chain: %w", err)
	}

	return nil
}
