package worker

import (
	"context"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"

	"github.com/networth-tracker/internal/chains"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/types"
)

// Backend provides per-chain RPC access. Satisfied by chains.Registry.
type Backend interface {
	Reader(ctx context.Context, chainID types.ChainID) (chains.BalanceReader, error)
	Caller(ctx context.Context, chainID types.ChainID) (bind.ContractCaller, error)
	MulticallAddress(ctx context.Context, chainID types.ChainID) (string, error)
	Wait(ctx context.Context, chainID types.ChainID) error
}

// PriceSource quotes token values in the base asset
type PriceSource interface {
	RateToBase(ctx context.Context, token *models.Token) (float64, error)
}

// AccountStore is the account lookup the handlers need
type AccountStore interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
}

// TokenStore is the token lookup the handlers need
type TokenStore interface {
	NativeToken(ctx context.Context, chain types.ChainID) (*models.Token, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*models.Token, error)
}

// BalanceStore persists the rows the handlers produce
type BalanceStore interface {
	Upsert(ctx context.Context, balance *models.Balance) error
}

// toUnits converts a raw on-chain integer amount into whole token
// units
func toUnits(raw *big.Int, decimals int) float64 {
	amount := new(big.Float).SetInt(raw)
	amount.Quo(amount, big.NewFloat(math.Pow10(decimals)))

	units, _ := amount.Float64()
	return units
}
