// Package service implements the aggregation, snapshot and
// registration logic on top of the storage and chain layers.
package service

import (
	"context"
	"sort"
	"time"

	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/storage"
	"github.com/networth-tracker/internal/types"
)

// BalanceSource supplies the positive balance rows to aggregate
type BalanceSource interface {
	ListPositive(ctx context.Context) ([]*storage.PortfolioBalanceRow, error)
}

// OffchainSource supplies the manual off-chain entries
type OffchainSource interface {
	List(ctx context.Context) ([]*models.OffchainBalance, error)
}

// NetworthSource supplies the recorded networth time series
type NetworthSource interface {
	List(ctx context.Context) ([]*models.NetworthSnapshot, error)
}

// AccountSource supplies account metadata for per-account totals
type AccountSource interface {
	List(ctx context.Context) ([]*models.Account, error)
}

// AccountShare is one account's slice of a token position
type AccountShare struct {
	AccountID   int64   `json:"account_id"`
	AccountName string  `json:"account_name"`
	Amount      float64 `json:"amount"`
	EthValue    float64 `json:"eth_value"`
	Percent     float64 `json:"percent"`
}

// TokenPosition is one token's aggregated position across all accounts
type TokenPosition struct {
	TokenID   int64         `json:"token_id"`
	ChainID   types.ChainID `json:"chain_id"`
	ChainName string        `json:"chain_name"`
	Address   string        `json:"address"`
	Symbol    string        `json:"symbol"`
	Name      string        `json:"name"`
	Amount    float64       `json:"amount"`
	EthValue  float64       `json:"eth_value"`
	Rate      float64       `json:"rate"`
	CheckedAt time.Time     `json:"checked_at"`
	Accounts  []AccountShare `json:"accounts"`
}

// Portfolio is the full aggregated holdings view
type Portfolio struct {
	Tokens           []TokenPosition           `json:"tokens"`
	Offchain         []*models.OffchainBalance `json:"offchain"`
	OnchainEthValue  float64                   `json:"onchain_eth_value"`
	OffchainEthValue float64                   `json:"offchain_eth_value"`
	TotalEthValue    float64                   `json:"total_eth_value"`
	GeneratedAt      time.Time                 `json:"generated_at"`
}

// AccountTotal is one account's share of the total networth
type AccountTotal struct {
	AccountID   int64   `json:"account_id"`
	AccountName string  `json:"account_name"`
	EthValue    float64 `json:"eth_value"`
	Percent     float64 `json:"percent"`
}

// PortfolioService aggregates stored balances into portfolio views.
// It never touches a chain: workers write, this reads.
type PortfolioService struct {
	balances BalanceSource
	offchain OffchainSource
	networth NetworthSource
	accounts AccountSource
	logger   *logging.Logger
}

// NewPortfolioService creates a portfolio service
func NewPortfolioService(balances BalanceSource, offchain OffchainSource, networth NetworthSource, accounts AccountSource, logger *logging.Logger) *PortfolioService {
	return &PortfolioService{
		balances: balances,
		offchain: offchain,
		networth: networth,
		accounts: accounts,
		logger:   logger.WithField("component", "portfolio_service"),
	}
}

// ComputePortfolio aggregates all stored balances into the holdings
// view
func (s *PortfolioService) ComputePortfolio(ctx context.Context) (*Portfolio, error) {
	rows, err := s.balances.ListPositive(ctx)
	if err != nil {
		return nil, err
	}

	offchain, err := s.offchain.List(ctx)
	if err != nil {
		return nil, err
	}

	return aggregate(rows, offchain, time.Now().UTC()), nil
}

// aggregate folds balance rows into per-token positions. Pure so the
// math is testable without storage.
func aggregate(rows []*storage.PortfolioBalanceRow, offchain []*models.OffchainBalance, now time.Time) *Portfolio {
	positions := make(map[int64]*TokenPosition)
	order := make([]int64, 0)

	for _, row := range rows {
		position, ok := positions[row.TokenID]
		if !ok {
			position = &TokenPosition{
				TokenID:   row.TokenID,
				ChainID:   row.ChainID,
				ChainName: row.ChainName,
				Address:   row.TokenAddress,
				Symbol:    row.Symbol,
				Name:      row.TokenName,
			}
			positions[row.TokenID] = position
			order = append(order, row.TokenID)
		}

		position.Amount += row.Amount
		position.EthValue += row.EthValue
		position.Accounts = append(position.Accounts, AccountShare{
			AccountID:   row.AccountID,
			AccountName: row.AccountName,
			Amount:      row.Amount,
			EthValue:    row.EthValue,
		})

		// the freshest row's implied rate represents the token
		if row.CheckedAt.After(position.CheckedAt) {
			position.CheckedAt = row.CheckedAt
			if row.Amount > 0 {
				position.Rate = row.EthValue / row.Amount
			}
		}
	}

	portfolio := &Portfolio{
		Offchain:    offchain,
		GeneratedAt: now,
	}

	for _, tokenID := range order {
		position := positions[tokenID]

		for i := range position.Accounts {
			if position.EthValue > 0 {
				position.Accounts[i].Percent = position.Accounts[i].EthValue / position.EthValue * 100
			}
		}

		portfolio.OnchainEthValue += position.EthValue
		portfolio.Tokens = append(portfolio.Tokens, *position)
	}

	sort.Slice(portfolio.Tokens, func(i, j int) bool {
		return portfolio.Tokens[i].EthValue > portfolio.Tokens[j].EthValue
	})

	for _, entry := range offchain {
		portfolio.OffchainEthValue += entry.EthValue
	}

	portfolio.TotalEthValue = portfolio.OnchainEthValue + portfolio.OffchainEthValue

	return portfolio
}

// EthValueByAccount totals holdings per account, off-chain entries
// included
func (s *PortfolioService) EthValueByAccount(ctx context.Context) ([]AccountTotal, error) {
	rows, err := s.balances.ListPositive(ctx)
	if err != nil {
		return nil, err
	}

	offchain, err := s.offchain.List(ctx)
	if err != nil {
		return nil, err
	}

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}

	return totalsByAccount(rows, offchain, accounts), nil
}

func totalsByAccount(rows []*storage.PortfolioBalanceRow, offchain []*models.OffchainBalance, accounts []*models.Account) []AccountTotal {
	totals := make(map[int64]*AccountTotal)
	order := make([]int64, 0, len(accounts))

	for _, account := range accounts {
		totals[account.ID] = &AccountTotal{
			AccountID:   account.ID,
			AccountName: account.Name,
		}
		order = append(order, account.ID)
	}

	grandTotal := 0.0
	for _, row := range rows {
		if total, ok := totals[row.AccountID]; ok {
			total.EthValue += row.EthValue
			grandTotal += row.EthValue
		}
	}
	for _, entry := range offchain {
		if total, ok := totals[entry.AccountID]; ok {
			total.EthValue += entry.EthValue
			grandTotal += entry.EthValue
		}
	}

	result := make([]AccountTotal, 0, len(order))
	for _, id := range order {
		total := totals[id]
		if grandTotal > 0 {
			total.Percent = total.EthValue / grandTotal * 100
		}
		result = append(result, *total)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EthValue > result[j].EthValue
	})

	return result
}

// NetworthTimeSeries returns the recorded snapshot history in
// chronological order
func (s *PortfolioService) NetworthTimeSeries(ctx context.Context) ([]*models.NetworthSnapshot, error) {
	return s.networth.List(ctx)
}
