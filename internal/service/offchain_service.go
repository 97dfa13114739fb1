package service

import (
	"context"
	"strings"

	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
)

// OffchainRepo is the off-chain entry storage the service needs
type OffchainRepo interface {
	Upsert(ctx context.Context, entry *models.OffchainBalance) error
	List(ctx context.Context) ([]*models.OffchainBalance, error)
	Delete(ctx context.Context, id int64) error
}

// AccountRepo is the account lookup the service needs
type AccountRepo interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
}

// OffchainService manages manually entered balances that have no
// on-chain source: exchange accounts, cold storage estimates, and the
// like. Values are entered directly in the base asset.
type OffchainService struct {
	entries  OffchainRepo
	accounts AccountRepo
	logger   *logging.Logger
}

// NewOffchainService creates an offchain balance service
func NewOffchainService(entries OffchainRepo, accounts AccountRepo, logger *logging.Logger) *OffchainService {
	return &OffchainService{
		entries:  entries,
		accounts: accounts,
		logger:   logger.WithField("component", "offchain_service"),
	}
}

// Set creates or updates an off-chain entry
func (s *OffchainService) Set(ctx context.Context, entry *models.OffchainBalance) error {
	if strings.TrimSpace(entry.Name) == "" {
		return errors.NewValidationError("name", "cannot be empty")
	}
	if entry.EthValue < 0 {
		return errors.NewValidationError("eth_value", "cannot be negative")
	}

	account, err := s.accounts.GetByID(ctx, entry.AccountID)
	if err != nil {
		return errors.NewPersistenceError("get account", err)
	}
	if account == nil {
		return errors.NewNotFoundError("account", entry.AccountID)
	}

	if err := s.entries.Upsert(ctx, entry); err != nil {
		return errors.NewPersistenceError("upsert offchain balance", err)
	}

	return nil
}

// List returns all off-chain entries
func (s *OffchainService) List(ctx context.Context) ([]*models.OffchainBalance, error) {
	return s.entries.List(ctx)
}

// Delete removes an off-chain entry
func (s *OffchainService) Delete(ctx context.Context, id int64) error {
	if err := s.entries.Delete(ctx, id); err != nil {
		return errors.NewPersistenceError("delete offchain balance", err)
	}
	return nil
}
