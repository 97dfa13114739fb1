// Package oracle resolves on-chain token prices through 1inch spot
// price aggregator contracts. All prices are quoted in the base asset
// (ETH); fiat conversion happens on top of that via FiatFeed.
package oracle

import (
	"context"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/networth-tracker/internal/chains"
	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/types"
)

// Spot price aggregator deployments. The zksync deployment differs
// from the address shared by every other supported chain.
const (
	defaultAggregatorAddress = "0x0AdDd25a91563696D8567Df78D5A01C9a991F9B8"
	zksyncAggregatorAddress  = "0xc9bB6e4FF7dEEa48e045CEd9C0ce016c7CFbD500"

	zksyncChainID types.ChainID = 324
)

// ContractBackend provides per-chain contract callers. Satisfied by
// chains.Registry; faked in tests.
type ContractBackend interface {
	Caller(ctx context.Context, chainID types.ChainID) (bind.ContractCaller, error)
	Wait(ctx context.Context, chainID types.ChainID) error
}

// PriceOracle quotes token prices in the base asset via on-chain spot
// aggregator reads
type PriceOracle struct {
	backend     ContractBackend
	aggregators map[types.ChainID]common.Address
	logger      *logging.Logger
}

// NewPriceOracle creates a price oracle using the standard aggregator
// deployments
func NewPriceOracle(backend ContractBackend, logger *logging.Logger) *PriceOracle {
	return &PriceOracle{
		backend: backend,
		aggregators: map[types.ChainID]common.Address{
			zksyncChainID: common.HexToAddress(zksyncAggregatorAddress),
		},
		logger: logger.WithField("component", "price_oracle"),
	}
}

// AggregatorAddress returns the spot aggregator deployment for the
// chain
func (o *PriceOracle) AggregatorAddress(chainID types.ChainID) common.Address {
	if addr, ok := o.aggregators[chainID]; ok {
		return addr
	}
	return common.HexToAddress(defaultAggregatorAddress)
}

// RateToBase returns how much base asset one whole token is worth.
// The native pseudo-token is the base asset itself, so its rate is
// exactly 1 with no chain read. Wrapped tokens are priced by their
// underlying asset.
func (o *PriceOracle) RateToBase(ctx context.Context, token *models.Token) (float64, error) {
	if token.IsNative() {
		return 1.0, nil
	}

	priceAddress, priceDecimals := token.PriceAddress()
	return o.rateToBase(ctx, token.Chain, priceAddress, priceDecimals)
}

func (o *PriceOracle) rateToBase(ctx context.Context, chainID types.ChainID, address string, decimals int) (float64, error) {
	if err := o.backend.Wait(ctx, chainID); err != nil {
		return 0, err
	}

	caller, err := o.backend.Caller(ctx, chainID)
	if err != nil {
		return 0, err
	}

	data, err := chains.SpotAggregatorABI.Pack("getRateToEth", common.HexToAddress(address), true)
	if err != nil {
		return 0, errors.NewPriceUnavailableError(chainID, address, err)
	}

	out, err := chains.Call(ctx, caller, o.AggregatorAddress(chainID), data)
	if err != nil {
		return 0, errors.NewPriceUnavailableError(chainID, address, err)
	}

	unpacked, err := chains.SpotAggregatorABI.Unpack("getRateToEth", out)
	if err != nil {
		return 0, errors.NewPriceUnavailableError(chainID, address, err)
	}
	rawRate := unpacked[0].(*big.Int)

	if rawRate.Sign() == 0 {
		return 0, errors.NewPriceUnavailableError(chainID, address, nil)
	}

	return scaleRate(rawRate, decimals), nil
}

// scaleRate converts the aggregator's raw rate into base asset units
// per whole token. The contract quotes wei per smallest token unit
// scaled by 1e18, so the net adjustment is x 10^decimals / 10^36.
func scaleRate(rawRate *big.Int, decimals int) float64 {
	rate := new(big.Float).SetInt(rawRate)
	rate.Mul(rate, big.NewFloat(math.Pow10(decimals)))
	rate.Quo(rate, big.NewFloat(1e36))

	scaled, _ := rate.Float64()
	return scaled
}
