package oracle

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/types"
)

type fakeCaller struct {
	rate  *big.Int
	err   error
	calls int

	lastTo   common.Address
	lastData []byte
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	f.lastTo = *call.To
	f.lastData = call.Data
	if f.err != nil {
		return nil, f.err
	}
	return common.LeftPadBytes(f.rate.Bytes(), 32), nil
}

type fakeBackend struct {
	caller    *fakeCaller
	callerErr error
}

func (f *fakeBackend) Caller(ctx context.Context, chainID types.ChainID) (bind.ContractCaller, error) {
	if f.callerErr != nil {
		return nil, f.callerErr
	}
	return f.caller, nil
}

func (f *fakeBackend) Wait(ctx context.Context, chainID types.ChainID) error {
	return nil
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError, logging.FormatText)
}

// rawRate builds mantissa x 10^exp as the aggregator would return it
func rawRate(mantissa int64, exp int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
	return new(big.Int).Mul(big.NewInt(mantissa), scale)
}

func TestScaleRate(t *testing.T) {
	cases := []struct {
		name     string
		raw      *big.Int
		decimals int
		want     float64
	}{
		{"18 decimal token at half base", rawRate(5, 17), 18, 0.5},
		{"6 decimal stable at a quarter base", rawRate(25, 31), 6, 0.25},
		{"parity", rawRate(1, 18), 18, 1.0},
		{"tiny rate", rawRate(1, 12), 18, 1e-6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, scaleRate(tc.raw, tc.decimals), tc.want*1e-9)
		})
	}
}

func TestRateToBase_NativeNeverTouchesChain(t *testing.T) {
	backend := &fakeBackend{callerErr: assert.AnError}
	oracle := NewPriceOracle(backend, testLogger())

	native := &models.Token{Chain: types.ChainMainnet, Address: types.ZeroAddress, Decimals: 18}

	rate, err := oracle.RateToBase(context.Background(), native)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
}

func TestRateToBase_ReadsAggregator(t *testing.T) {
	caller := &fakeCaller{rate: rawRate(25, 31)} // 0.25 base per whole token at 6 decimals
	oracle := NewPriceOracle(&fakeBackend{caller: caller}, testLogger())

	token := &models.Token{
		Chain:    types.ChainMainnet,
		Address:  strings.ToLower(usdcMainnetAddress),
		Decimals: usdcDecimals,
	}

	rate, err := oracle.RateToBase(context.Background(), token)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, rate, 1e-12)

	assert.Equal(t, common.HexToAddress(defaultAggregatorAddress), caller.lastTo)
	// calldata carries the token address being priced
	assert.Contains(t, common.Bytes2Hex(caller.lastData), strings.ToLower(usdcMainnetAddress[2:]))
}

func TestRateToBase_ZeroRateIsUnavailable(t *testing.T) {
	caller := &fakeCaller{rate: big.NewInt(0)}
	oracle := NewPriceOracle(&fakeBackend{caller: caller}, testLogger())

	token := &models.Token{
		Chain:    types.ChainMainnet,
		Address:  "0x1111111111111111111111111111111111111111",
		Decimals: 18,
	}

	_, err := oracle.RateToBase(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, errors.CodePriceUnavailable, errors.Categorize(err).Code)
	assert.True(t, errors.IsRetryable(err))
}

func TestRateToBase_WrappedTokenPricesUnderlying(t *testing.T) {
	caller := &fakeCaller{rate: rawRate(1, 18)}
	oracle := NewPriceOracle(&fakeBackend{caller: caller}, testLogger())

	underlying := "0x3333333333333333333333333333333333333333"
	underlyingDecimals := 18
	wrapped := &models.Token{
		Chain:                types.ChainMainnet,
		Address:              "0x2222222222222222222222222222222222222222",
		Decimals:             18,
		WrappedAssetAddress:  &underlying,
		WrappedAssetDecimals: &underlyingDecimals,
	}

	_, err := oracle.RateToBase(context.Background(), wrapped)
	require.NoError(t, err)
	assert.Contains(t, common.Bytes2Hex(caller.lastData), underlying[2:])
}

func TestAggregatorAddress(t *testing.T) {
	oracle := NewPriceOracle(&fakeBackend{}, testLogger())

	assert.Equal(t, common.HexToAddress(defaultAggregatorAddress), oracle.AggregatorAddress(types.ChainMainnet))
	assert.Equal(t, common.HexToAddress(defaultAggregatorAddress), oracle.AggregatorAddress(types.ChainID(42161)))
	assert.Equal(t, common.HexToAddress(zksyncAggregatorAddress), oracle.AggregatorAddress(zksyncChainID))
}

func TestFiatFeed_InvertsUSDCRate(t *testing.T) {
	// 1 USDC = 0.00025 ETH, so 1 ETH = 4000 USD
	caller := &fakeCaller{rate: rawRate(25, 28)}
	oracle := NewPriceOracle(&fakeBackend{caller: caller}, testLogger())
	feed := NewSpotFiatFeed(oracle, time.Minute, testLogger())

	rate, err := feed.Rate(context.Background(), "USD")
	require.NoError(t, err)
	assert.InDelta(t, 4000.0, rate, 1e-6)
}

func TestFiatFeed_CachesWithinTTL(t *testing.T) {
	caller := &fakeCaller{rate: rawRate(25, 28)}
	oracle := NewPriceOracle(&fakeBackend{caller: caller}, testLogger())
	feed := NewSpotFiatFeed(oracle, time.Minute, testLogger())

	_, err := feed.Rate(context.Background(), "usd")
	require.NoError(t, err)
	_, err = feed.Rate(context.Background(), "usd")
	require.NoError(t, err)

	assert.Equal(t, 1, caller.calls, "second read within the TTL must hit the cache")
}

func TestFiatFeed_ExpiredTTLRefetches(t *testing.T) {
	caller := &fakeCaller{rate: rawRate(25, 28)}
	oracle := NewPriceOracle(&fakeBackend{caller: caller}, testLogger())
	feed := NewSpotFiatFeed(oracle, time.Nanosecond, testLogger())

	_, err := feed.Rate(context.Background(), "usd")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = feed.Rate(context.Background(), "usd")
	require.NoError(t, err)
	assert.Equal(t, 2, caller.calls)
}

func TestFiatFeed_UnsupportedCurrency(t *testing.T) {
	oracle := NewPriceOracle(&fakeBackend{}, testLogger())
	feed := NewSpotFiatFeed(oracle, time.Minute, testLogger())

	_, err := feed.Rate(context.Background(), "eur")
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.Categorize(err).Code)
}
