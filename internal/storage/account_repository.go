package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/networth-tracker/internal/models"
)

// AccountRepository handles tracked account storage
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores a new account and fills in its generated id
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (name, address, label)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query, account.Name, account.Address, account.Label).
		Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by id. Returns (nil, nil) when missing.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `
		SELECT id, name, address, label, created_at
		FROM accounts
		WHERE id = $1
	`

	var account models.Account
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Name,
		&account.Address,
		&account.Label,
		&account.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	return &account, nil
}

// List retrieves all accounts ordered by id
func (r *AccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, `
		SELECT id, name, address, label, created_at
		FROM accounts
		ORDER BY id
	`)
}

// ListOnChain retrieves accounts that have an address and can be checked
// on chain. Manual-only accounts are excluded.
func (r *AccountRepository) ListOnChain(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, `
		SELECT id, name, address, label, created_at
		FROM accounts
		WHERE address IS NOT NULL AND address <> ''
		ORDER BY id
	`)
}

func (r *AccountRepository) list(ctx context.Context, query string) ([]*models.Account, error) {
	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(&account.ID, &account.Name, &account.Address, &account.Label, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	return accounts, nil
}

// Delete removes an account. Its balance rows cascade.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM accounts WHERE id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return nil
}
