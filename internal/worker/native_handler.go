package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/queue"
	"github.com/networth-tracker/internal/types"
)

// nativeDecimals is the base asset's precision on every supported
// chain
const nativeDecimals = 18

// NativeHandler refreshes one account's native asset balance on one
// chain. The native pseudo-token is the base asset, so its rate is 1
// and no oracle read happens.
type NativeHandler struct {
	backend  Backend
	accounts AccountStore
	tokens   TokenStore
	balances BalanceStore
	logger   *logging.Logger
}

// NewNativeHandler creates a native balance check handler
func NewNativeHandler(backend Backend, accounts AccountStore, tokens TokenStore, balances BalanceStore, logger *logging.Logger) *NativeHandler {
	return &NativeHandler{
		backend:  backend,
		accounts: accounts,
		tokens:   tokens,
		balances: balances,
		logger:   logger.WithField("handler", "native_check"),
	}
}

// Handle processes one native balance check task. Tasks referencing
// accounts or tokens deleted since enqueue are skipped, not failed.
func (h *NativeHandler) Handle(ctx context.Context, task *queue.Task) error {
	var payload types.NativeCheckPayload
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

	token, err := h.tokens.NativeToken(ctx, payload.ChainID)
	if err != nil {
		return errors.NewPersistenceError("get native token", err)
	}
	if token == nil {
		logger.Warn("Native token not registered for chain, skipping check")
		return nil
	}

	if err := h.backend.Wait(ctx, payload.ChainID); err != nil {
		return err
	}

	reader, err := h.backend.Reader(ctx, payload.ChainID)
	if err != nil {
		return err
	}

	wei, err := reader.BalanceAt(ctx, common.HexToAddress(*account.Address), nil)
	if err != nil {
		return errors.NewConnectionError(payload.ChainID, err)
	}

	amount := toUnits(wei, nativeDecimals)

	balance := &models.Balance{
		AccountID: account.ID,
		TokenID:   token.ID,
		Amount:    amount,
		EthValue:  amount,
		CheckedAt: time.Now().UTC(),
	}
	if err := h.balances.Upsert(ctx, balance); err != nil {
		return errors.NewPersistenceError("upsert balance", err)
	}

	logger.WithField("amount", amount).Debug("Refreshed native balance")

	return nil
}
