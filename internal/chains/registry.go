package chains

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/storage"
	"github.com/networth-tracker/internal/types"
)

// Registry hands out RPC clients keyed by chain id. Chain rows live in
// Postgres; clients are dialed lazily on first use and cached for the
// life of the process. All lookups for unknown chains fail with
// CHAIN_NOT_CONFIGURED rather than guessing an endpoint.
type Registry struct {
	chainRepo *storage.ChainRepository
	logger    *logging.Logger

	mu      sync.Mutex
	clients map[types.ChainID]*ethclient.Client

	// optional per-chain request throttle, shared by all workers
	limiterMu sync.Mutex
	limiters  map[types.ChainID]*rate.Limiter
	rps       float64
}

// NewRegistry creates a registry backed by the chain repository. rps > 0
// enables a per-chain request limiter applied before every RPC call
// issued through Wait.
func NewRegistry(chainRepo *storage.ChainRepository, rps float64, logger *logging.Logger) *Registry {
	return &Registry{
		chainRepo: chainRepo,
		logger:    logger.WithField("component", "chain_registry"),
		clients:   make(map[types.ChainID]*ethclient.Client),
		limiters:  make(map[types.ChainID]*rate.Limiter),
		rps:       rps,
	}
}

// Chain retrieves the chain's configuration row
func (r *Registry) Chain(ctx context.Context, chainID types.ChainID) (*models.Chain, error) {
	chain, err := r.chainRepo.GetByID(ctx, chainID)
	if err != nil {
		return nil, errors.NewPersistenceError("get chain", err)
	}
	if chain == nil {
		return nil, errors.NewChainNotConfiguredError(chainID)
	}
	return chain, nil
}

// Client returns the cached RPC client for the chain, dialing it on
// first use
func (r *Registry) Client(ctx context.Context, chainID types.ChainID) (*ethclient.Client, error) {
	r.mu.Lock()
	if client, ok := r.clients[chainID]; ok {
		r.mu.Unlock()
		return client, nil
	}
	r.mu.Unlock()

	chain, err := r.Chain(ctx, chainID)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, errors.NewConnectionError(chainID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// another goroutine may have dialed while we were
	if existing, ok := r.clients[chainID]; ok {
		client.Close()
		return existing, nil
	}
	r.clients[chainID] = client

	r.logger.WithFields(map[string]interface{}{
		"chain_id": chainID,
		"name":     chain.Name,
	}).Info("Connected to chain RPC")

	return client, nil
}

// Caller returns the chain's client as a contract caller for abi-bound
// reads
func (r *Registry) Caller(ctx context.Context, chainID types.ChainID) (bind.ContractCaller, error) {
	return r.Client(ctx, chainID)
}

// BalanceReader reads native asset balances. Satisfied by
// ethclient.Client.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Reader returns the chain's client as a native balance reader
func (r *Registry) Reader(ctx context.Context, chainID types.ChainID) (BalanceReader, error) {
	return r.Client(ctx, chainID)
}

// MulticallAddress returns the chain's multicall contract address, or
// "" when the chain has none and callers must fall back to single calls
func (r *Registry) MulticallAddress(ctx context.Context, chainID types.ChainID) (string, error) {
	chain, err := r.Chain(ctx, chainID)
	if err != nil {
		return "", err
	}
	return chain.MulticallAddress, nil
}

// Wait blocks until the chain's request limiter admits one more RPC
// call. No-op when the limiter is disabled.
func (r *Registry) Wait(ctx context.Context, chainID types.ChainID) error {
	if r.rps <= 0 {
		return nil
	}

	r.limiterMu.Lock()
	limiter, ok := r.limiters[chainID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(r.rps), int(r.rps)+1)
		r.limiters[chainID] = limiter
	}
	r.limiterMu.Unlock()

	return limiter.Wait(ctx)
}

// Close closes all dialed clients
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for chainID, client := range r.clients {
		client.Close()
		delete(r.clients, chainID)
	}
}
