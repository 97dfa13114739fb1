package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/types"
)

// TokenRepository handles tracked token storage
type TokenRepository struct {
	db *PostgresDB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *PostgresDB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create stores a new token. A duplicate (chain, address) pair is a
// no-op, not an error; the existing row is returned either way.
func (r *TokenRepository) Create(ctx context.Context, token *models.Token) error {
	query := `
		INSERT INTO tokens (chain_id, address, symbol, name, decimals, wrapped_asset_address, wrapped_asset_decimals)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chain_id, address) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		token.Chain,
		strings.ToLower(token.Address),
		token.Symbol,
		token.Name,
		token.Decimals,
		token.WrappedAssetAddress,
		token.WrappedAssetDecimals,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	existing, err := r.GetByChainAndAddress(ctx, token.Chain, token.Address)
	if err != nil {
		return err
	}
	if existing != nil {
		*token = *existing
	}

	return nil
}

// GetByID retrieves a token by id. Returns (nil, nil) when missing.
func (r *TokenRepository) GetByID(ctx context.Context, id int64) (*models.Token, error) {
	query := tokenSelect + ` WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByChainAndAddress retrieves a token by its unique (chain, address)
// pair. Returns (nil, nil) when missing.
func (r *TokenRepository) GetByChainAndAddress(ctx context.Context, chain types.ChainID, address string) (*models.Token, error) {
	query := tokenSelect + ` WHERE chain_id = $1 AND address = $2`
	return r.getOne(ctx, query, chain, strings.ToLower(address))
}

// NativeToken retrieves the chain's native pseudo-token (zero address).
// Returns (nil, nil) when it has not been registered.
func (r *TokenRepository) NativeToken(ctx context.Context, chain types.ChainID) (*models.Token, error) {
	return r.GetByChainAndAddress(ctx, chain, types.ZeroAddress)
}

// List retrieves all tokens ordered by chain and id
func (r *TokenRepository) List(ctx context.Context) ([]*models.Token, error) {
	query := tokenSelect + ` ORDER BY chain_id, id`
	return r.listQuery(ctx, query)
}

// ListByChain retrieves all tokens on one chain
func (r *TokenRepository) ListByChain(ctx context.Context, chain types.ChainID) ([]*models.Token, error) {
	query := tokenSelect + ` WHERE chain_id = $1 ORDER BY id`
	return r.listQuery(ctx, query, chain)
}

// ListByIDs retrieves the tokens with the given ids
func (r *TokenRepository) ListByIDs(ctx context.Context, ids []int64) ([]*models.Token, error) {
	query := tokenSelect + ` WHERE id = ANY($1) ORDER BY id`
	return r.listQuery(ctx, query, ids)
}

// Delete removes a token by its (chain, address) pair. Balance rows
// cascade; networth snapshots are untouched.
func (r *TokenRepository) Delete(ctx context.Context, chain types.ChainID, address string) error {
	query := `DELETE FROM tokens WHERE chain_id = $1 AND address = $2`

	if _, err := r.db.Pool().Exec(ctx, query, chain, strings.ToLower(address)); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}

const tokenSelect = `
	SELECT id, chain_id, address, symbol, name, decimals, wrapped_asset_address, wrapped_asset_decimals, created_at
	FROM tokens`

func (r *TokenRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Token, error) {
	var token models.Token
	err := r.db.Pool().QueryRow(ctx, query, args...).Scan(
		&token.ID,
		&token.Chain,
		&token.Address,
		&token.Symbol,
		&token.Name,
		&token.Decimals,
		&token.WrappedAssetAddress,
		&token.WrappedAssetDecimals,
		&token.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}

	return &token, nil
}

func (r *TokenRepository) listQuery(ctx context.Context, query string, args ...interface{}) ([]*models.Token, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.Token
	for rows.Next() {
		var token models.Token
		err := rows.Scan(
			&token.ID,
			&token.Chain,
			&token.Address,
			&token.Symbol,
			&token.Name,
			&token.Decimals,
			&token.WrappedAssetAddress,
			&token.WrappedAssetDecimals,
			&token.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		tokens = append(tokens, &token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token rows: %w", err)
	}

	return tokens, nil
}
