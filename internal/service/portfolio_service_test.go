package service

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/storage"
	"github.com/networth-tracker/internal/types"
)

func balanceRow(accountID int64, accountName string, tokenID int64, symbol string, amount, ethValue float64, checkedAt time.Time) *storage.PortfolioBalanceRow {
	return &storage.PortfolioBalanceRow{
		AccountID:    accountID,
		AccountName:  accountName,
		TokenID:      tokenID,
		ChainID:      types.ChainMainnet,
		ChainName:    "mainnet",
		TokenAddress: types.ZeroAddress,
		Symbol:       symbol,
		TokenName:    symbol,
		Decimals:     18,
		Amount:       amount,
		EthValue:     ethValue,
		CheckedAt:    checkedAt,
	}
}

func TestAggregate_GroupsByToken(t *testing.T) {
	now := time.Now().UTC()

	rows := []*storage.PortfolioBalanceRow{
		balanceRow(1, "main", 10, "ETH", 1.0, 1.0, now),
		balanceRow(2, "cold", 10, "ETH", 3.0, 3.0, now),
		balanceRow(1, "main", 20, "USDC", 2000, 0.5, now),
	}

	portfolio := aggregate(rows, nil, now)

	require.Len(t, portfolio.Tokens, 2)

	// sorted by value descending: ETH position first
	eth := portfolio.Tokens[0]
	assert.Equal(t, "ETH", eth.Symbol)
	assert.InDelta(t, 4.0, eth.Amount, 1e-9)
	assert.InDelta(t, 4.0, eth.EthValue, 1e-9)
	require.Len(t, eth.Accounts, 2)
	assert.InDelta(t, 25.0, eth.Accounts[0].Percent, 1e-9)
	assert.InDelta(t, 75.0, eth.Accounts[1].Percent, 1e-9)

	usdc := portfolio.Tokens[1]
	assert.Equal(t, "USDC", usdc.Symbol)
	assert.InDelta(t, 0.00025, usdc.Rate, 1e-12)

	assert.InDelta(t, 4.5, portfolio.TotalEthValue, 1e-9)
}

func TestAggregate_RateFromFreshestRow(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)

	// stale row implies rate 0.4, fresh row implies 0.5
	rows := []*storage.PortfolioBalanceRow{
		balanceRow(1, "main", 10, "WETH", 10, 4.0, earlier),
		balanceRow(2, "cold", 10, "WETH", 10, 5.0, now),
	}

	portfolio := aggregate(rows, nil, now)

	require.Len(t, portfolio.Tokens, 1)
	assert.InDelta(t, 0.5, portfolio.Tokens[0].Rate, 1e-9)
	assert.Equal(t, now, portfolio.Tokens[0].CheckedAt)
}

func TestAggregate_IncludesOffchain(t *testing.T) {
	now := time.Now().UTC()

	rows := []*storage.PortfolioBalanceRow{
		balanceRow(1, "main", 10, "ETH", 1.0, 1.0, now),
	}
	offchain := []*models.OffchainBalance{
		{ID: 1, AccountID: 1, Name: "exchange", EthValue: 0.5},
		{ID: 2, AccountID: 2, Name: "cold storage", EthValue: 0.25},
	}

	portfolio := aggregate(rows, offchain, now)

	assert.InDelta(t, 1.0, portfolio.OnchainEthValue, 1e-9)
	assert.InDelta(t, 0.75, portfolio.OffchainEthValue, 1e-9)
	assert.InDelta(t, 1.75, portfolio.TotalEthValue, 1e-9)
}

func TestAggregate_Empty(t *testing.T) {
	portfolio := aggregate(nil, nil, time.Now().UTC())

	assert.Empty(t, portfolio.Tokens)
	assert.Zero(t, portfolio.TotalEthValue)
}

func TestTotalsByAccount(t *testing.T) {
	now := time.Now().UTC()

	rows := []*storage.PortfolioBalanceRow{
		balanceRow(1, "main", 10, "ETH", 1.0, 3.0, now),
		balanceRow(2, "cold", 10, "ETH", 1.0, 1.0, now),
	}
	offchain := []*models.OffchainBalance{
		{ID: 1, AccountID: 2, Name: "exchange", EthValue: 2.0},
	}
	accounts := []*models.Account{
		{ID: 1, Name: "main"},
		{ID: 2, Name: "cold"},
		{ID: 3, Name: "empty"},
	}

	totals := totalsByAccount(rows, offchain, accounts)

	require.Len(t, totals, 3)
	assert.Equal(t, "main", totals[0].AccountName)
	assert.InDelta(t, 3.0, totals[0].EthValue, 1e-9)
	assert.InDelta(t, 50.0, totals[0].Percent, 1e-9)
	assert.Equal(t, "cold", totals[1].AccountName)
	assert.InDelta(t, 3.0, totals[1].EthValue, 1e-9)
	assert.Equal(t, "empty", totals[2].AccountName)
	assert.Zero(t, totals[2].EthValue)
	assert.Zero(t, totals[2].Percent)
}

func TestAggregate_Properties(t *testing.T) {
	now := time.Now().UTC()
	properties := gopter.NewProperties(nil)

	genValues := gen.SliceOfN(8, gen.Float64Range(0.001, 1000))

	properties.Property("total equals sum of rows", prop.ForAll(
		func(values []float64) bool {
			rows := make([]*storage.PortfolioBalanceRow, len(values))
			sum := 0.0
			for i, v := range values {
				rows[i] = balanceRow(int64(i+1), "acct", int64(i%3), "TOK", v, v, now)
				sum += v
			}

			portfolio := aggregate(rows, nil, now)
			return math.Abs(portfolio.TotalEthValue-sum) < 1e-6
		},
		genValues,
	))

	properties.Property("account shares of each token sum to 100", prop.ForAll(
		func(values []float64) bool {
			rows := make([]*storage.PortfolioBalanceRow, len(values))
			for i, v := range values {
				rows[i] = balanceRow(int64(i+1), "acct", 1, "TOK", v, v, now)
			}

			portfolio := aggregate(rows, nil, now)
			for _, token := range portfolio.Tokens {
				total := 0.0
				for _, share := range token.Accounts {
					total += share.Percent
				}
				if math.Abs(total-100) > 1e-6 {
					return false
				}
			}
			return true
		},
		genValues,
	))

	properties.TestingRun(t)
}
