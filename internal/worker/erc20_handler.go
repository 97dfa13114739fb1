package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/networth-tracker/internal/chains"
	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/queue"
	"github.com/networth-tracker/internal/types"
)

// ERC20Handler refreshes one account's token balances on one chain.
// The whole batch reads through the chain's multicall contract when it
// has one; individual token failures are isolated so one bad token
// keeps its stale row without blocking the rest.
type ERC20Handler struct {
	backend  Backend
	prices   PriceSource
	accounts AccountStore
	tokens   TokenStore
	balances BalanceStore
	logger   *logging.Logger
}

// NewERC20Handler creates a token balance check handler
func NewERC20Handler(backend Backend, prices PriceSource, accounts AccountStore, tokens TokenStore, balances BalanceStore, logger *logging.Logger) *ERC20Handler {
	return &ERC20Handler{
		backend:  backend,
		prices:   prices,
		accounts: accounts,
		tokens:   tokens,
		balances: balances,
		logger:   logger.WithField("handler", "erc20_check"),
	}
}

// Handle processes one token balance check task
func (h *ERC20Handler) Handle(ctx context.Context, task *queue.Task) error {
	var payload types.ERC20CheckPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return errors.NewValidationError("payload", err.Error())
	}

	logger := h.logger.WithFields(map[string]interface{}{
		"account_id": payload.AccountID,
		"chain_id":   payload.ChainID,
	})

	account, err := h.accounts.GetByID(ctx, payload.AccountID)
	if err != nil {
		return errors.NewPersistenceError("get account", err)
	}
	if account == nil || !account.OnChain() {
		logger.Warn("Account missing or has no address, skipping check")
		return nil
	}

	tokens, err := h.tokens.ListByIDs(ctx, payload.TokenIDs)
	if err != nil {
		return errors.NewPersistenceError("list tokens", err)
	}

	// tokens deleted since enqueue simply drop out of the batch
	var checkable []*models.Token
	for _, token := range tokens {
		if token.Chain == payload.ChainID && !token.IsNative() {
			checkable = append(checkable, token)
		}
	}
	if len(checkable) == 0 {
		logger.Warn("No checkable tokens remain, skipping check")
		return nil
	}

	if err := h.backend.Wait(ctx, payload.ChainID); err != nil {
		return err
	}

	caller, err := h.backend.Caller(ctx, payload.ChainID)
	if err != nil {
		return err
	}

	owner := common.HexToAddress(*account.Address)

	rawBalances, err := h.readBalances(ctx, caller, payload.ChainID, owner, checkable)
	if err != nil {
		return err
	}

	checkedAt := time.Now().UTC()
	failed := 0

	for _, token := range checkable {
		raw, ok := rawBalances[token.ID]
		if !ok {
			failed++
			continue
		}

		amount, value, err := h.valueToken(ctx, caller, token, raw)
		if err != nil {
			logger.WithError(err).WithField("token", token.Symbol).Warn("Token check failed, keeping stale row")
			failed++
			continue
		}

		balance := &models.Balance{
			AccountID: account.ID,
			TokenID:   token.ID,
			Amount:    amount,
			EthValue:  value,
			CheckedAt: checkedAt,
		}
		if err := h.balances.Upsert(ctx, balance); err != nil {
			return errors.NewPersistenceError("upsert balance", err)
		}
	}

	if failed == len(checkable) {
		return errors.NewConnectionError(payload.ChainID, fmt.Errorf("all %d token checks failed", failed))
	}

	if failed > 0 {
		logger.WithFields(map[string]interface{}{
			"checked": len(checkable) - failed,
			"failed":  failed,
		}).Warn("Refreshed token balances with partial failures")
	} else {
		logger.WithField("checked", len(checkable)).Debug("Refreshed token balances")
	}

	return nil
}

// readBalances fetches the raw balanceOf results for the batch, via
// multicall when the chain has one. Missing map entries mark per-token
// failures.
func (h *ERC20Handler) readBalances(ctx context.Context, caller bind.ContractCaller, chainID types.ChainID, owner common.Address, tokens []*models.Token) (map[int64]*big.Int, error) {
	multicall, err := h.backend.MulticallAddress(ctx, chainID)
	if err != nil {
		return nil, err
	}

	data, err := chains.ERC20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, errors.NewValidationError("balanceOf", err.Error())
	}

	rawBalances := make(map[int64]*big.Int, len(tokens))

	if multicall == "" {
		for _, token := range tokens {
			out, err := chains.Call(ctx, caller, common.HexToAddress(token.Address), data)
			if err != nil || len(out) == 0 {
				continue
			}
			rawBalances[token.ID] = new(big.Int).SetBytes(out)
		}
		return rawBalances, nil
	}

	calls := make([]chains.Multicall3Call, len(tokens))
	for i, token := range tokens {
		calls[i] = chains.Multicall3Call{
			Target:       common.HexToAddress(token.Address),
			AllowFailure: true,
			CallData:     data,
		}
	}

	results, err := chains.Aggregate3(ctx, caller, common.HexToAddress(multicall), calls)
	if err != nil {
		return nil, errors.NewConnectionError(chainID, err)
	}

	for i, result := range results {
		if !result.Success || len(result.ReturnData) == 0 {
			continue
		}
		rawBalances[tokens[i].ID] = new(big.Int).SetBytes(result.ReturnData)
	}

	return rawBalances, nil
}

// valueToken converts a raw balance into whole units and its base
// asset value. Wrapped vault tokens are redeemed into their underlying
// asset before pricing.
func (h *ERC20Handler) valueToken(ctx context.Context, caller bind.ContractCaller, token *models.Token, raw *big.Int) (float64, float64, error) {
	var amount float64

	if token.IsWrapped() {
		data, err := chains.ERC4626ABI.Pack("convertToAssets", raw)
		if err != nil {
			return 0, 0, errors.NewValidationError("convertToAssets", err.Error())
		}

		out, err := chains.Call(ctx, caller, common.HexToAddress(token.Address), data)
		if err != nil {
			return 0, 0, errors.NewConnectionError(token.Chain, err)
		}

		amount = toUnits(new(big.Int).SetBytes(out), *token.WrappedAssetDecimals)
	} else {
		amount = toUnits(raw, token.Decimals)
	}

	rate, err := h.prices.RateToBase(ctx, token)
	if err != nil {
		return 0, 0, err
	}

	return amount, amount * rate, nil
}
