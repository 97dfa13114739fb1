package oracle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/retry"
	"github.com/networth-tracker/internal/types"
)

// FiatFeed quotes how many fiat currency units one base asset unit is
// worth
type FiatFeed interface {
	Rate(ctx context.Context, currency string) (float64, error)
}

// USDC on mainnet anchors the USD quote: the aggregator's USDC-to-ETH
// rate inverted gives USD per ETH.
const (
	usdcMainnetAddress = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	usdcDecimals       = 6
)

// SpotFiatFeed derives the fiat rate from the on-chain spot aggregator
// on mainnet, with a short-lived cache so the snapshot job and the API
// don't hammer the RPC for a slow-moving number.
type SpotFiatFeed struct {
	oracle *PriceOracle
	ttl    time.Duration
	logger *logging.Logger

	mu        sync.Mutex
	cached    float64
	fetchedAt time.Time
}

// NewSpotFiatFeed creates a fiat feed with the given cache TTL
func NewSpotFiatFeed(oracle *PriceOracle, ttl time.Duration, logger *logging.Logger) *SpotFiatFeed {
	return &SpotFiatFeed{
		oracle: oracle,
		ttl:    ttl,
		logger: logger.WithField("component", "fiat_feed"),
	}
}

// Rate returns the fiat units per one base asset unit. Only USD is
// supported.
func (f *SpotFiatFeed) Rate(ctx context.Context, currency string) (float64, error) {
	if strings.ToLower(currency) != "usd" {
		return 0, errors.NewValidationError("currency", "only usd is supported")
	}

	f.mu.Lock()
	if f.cached > 0 && time.Since(f.fetchedAt) < f.ttl {
		cached := f.cached
		f.mu.Unlock()
		return cached, nil
	}
	f.mu.Unlock()

	var usdcPerToken float64
	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context, attempt int) error {
		var rateErr error
		usdcPerToken, rateErr = f.oracle.rateToBase(ctx, types.ChainMainnet, usdcMainnetAddress, usdcDecimals)
		return rateErr
	})
	if err != nil {
		return 0, err
	}

	rate := 1 / usdcPerToken

	f.mu.Lock()
	f.cached = rate
	f.fetchedAt = time.Now()
	f.mu.Unlock()

	f.logger.WithField("usd_rate", rate).Debug("Refreshed fiat rate")

	return rate, nil
}
