package service

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/networth-tracker/internal/chains"
	"github.com/networth-tracker/internal/errors"
	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/retry"
	"github.com/networth-tracker/internal/types"
)

// ChainBackend provides the contract reads token registration needs.
// Satisfied by chains.Registry.
type ChainBackend interface {
	Caller(ctx context.Context, chainID types.ChainID) (bind.ContractCaller, error)
	MulticallAddress(ctx context.Context, chainID types.ChainID) (string, error)
	Wait(ctx context.Context, chainID types.ChainID) error
}

// TokenRepo is the token storage the service needs
type TokenRepo interface {
	Create(ctx context.Context, token *models.Token) error
	GetByChainAndAddress(ctx context.Context, chain types.ChainID, address string) (*models.Token, error)
	List(ctx context.Context) ([]*models.Token, error)
	ListByChain(ctx context.Context, chain types.ChainID) ([]*models.Token, error)
	Delete(ctx context.Context, chain types.ChainID, address string) error
}

// TokenService registers and manages tracked tokens. Registration
// resolves metadata on chain; the zero address is the native
// pseudo-token and is registered with fixed metadata, no chain read.
type TokenService struct {
	backend ChainBackend
	tokens  TokenRepo
	logger  *logging.Logger
}

// NewTokenService creates a token service
func NewTokenService(backend ChainBackend, tokens TokenRepo, logger *logging.Logger) *TokenService {
	return &TokenService{
		backend: backend,
		tokens:  tokens,
		logger:  logger.WithField("component", "token_service"),
	}
}

// Register adds a token to the tracked set, resolving its metadata on
// chain. Registering an already-tracked (chain, address) pair returns
// the existing row unchanged.
func (s *TokenService) Register(ctx context.Context, chainID types.ChainID, address string) (*models.Token, error) {
	if !common.IsHexAddress(address) {
		return nil, errors.NewValidationError("address", "not a valid hex address")
	}

	token := &models.Token{
		Chain:   chainID,
		Address: strings.ToLower(address),
	}

	if types.IsZeroAddress(address) {
		token.Symbol = "ETH"
		token.Name = "Ether"
		token.Decimals = 18
	} else {
		err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context, attempt int) error {
			return s.resolveMetadata(ctx, chainID, token)
		})
		if err != nil {
			return nil, err
		}
	}

	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, errors.NewPersistenceError("create token", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"chain_id": chainID,
		"address":  token.Address,
		"symbol":   token.Symbol,
	}).Info("Registered token")

	return token, nil
}

// resolveMetadata reads name, symbol and decimals from the token
// contract, and probes for an ERC-4626 asset() to detect wrapped vault
// tokens
func (s *TokenService) resolveMetadata(ctx context.Context, chainID types.ChainID, token *models.Token) error {
	if err := s.backend.Wait(ctx, chainID); err != nil {
		return err
	}

	caller, err := s.backend.Caller(ctx, chainID)
	if err != nil {
		return err
	}

	tokenAddr := common.HexToAddress(token.Address)

	nameData, _ := chains.ERC20ABI.Pack("name")
	symbolData, _ := chains.ERC20ABI.Pack("symbol")
	decimalsData, _ := chains.ERC20ABI.Pack("decimals")
	assetData, _ := chains.ERC4626ABI.Pack("asset")

	multicall, err := s.backend.MulticallAddress(ctx, chainID)
	if err != nil {
		return err
	}

	var nameOut, symbolOut, decimalsOut, assetOut []byte

	if multicall != "" {
		calls := []chains.Multicall3Call{
			{Target: tokenAddr, AllowFailure: false, CallData: nameData},
			{Target: tokenAddr, AllowFailure: false, CallData: symbolData},
			{Target: tokenAddr, AllowFailure: false, CallData: decimalsData},
			{Target: tokenAddr, AllowFailure: true, CallData: assetData},
		}

		results, err := chains.Aggregate3(ctx, caller, common.HexToAddress(multicall), calls)
		if err != nil {
			return errors.NewConnectionError(chainID, err)
		}

		nameOut = results[0].ReturnData
		symbolOut = results[1].ReturnData
		decimalsOut = results[2].ReturnData
		if results[3].Success {
			assetOut = results[3].ReturnData
		}
	} else {
		if nameOut, err = chains.Call(ctx, caller, tokenAddr, nameData); err != nil {
			return errors.NewConnectionError(chainID, err)
		}
		if symbolOut, err = chains.Call(ctx, caller, tokenAddr, symbolData); err != nil {
			return errors.NewConnectionError(chainID, err)
		}
		if decimalsOut, err = chains.Call(ctx, caller, tokenAddr, decimalsData); err != nil {
			return errors.NewConnectionError(chainID, err)
		}
		// non-vault tokens revert here; that's the negative probe result
		assetOut, _ = chains.Call(ctx, caller, tokenAddr, assetData)
	}

	if token.Name, err = unpackString("name", nameOut); err != nil {
		return err
	}
	if token.Symbol, err = unpackString("symbol", symbolOut); err != nil {
		return err
	}
	if token.Decimals, err = unpackDecimals(decimalsOut); err != nil {
		return err
	}

	if underlying, ok := unpackAsset(assetOut); ok {
		return s.resolveUnderlying(ctx, caller, token, underlying)
	}

	return nil
}

// resolveUnderlying records the vault's underlying asset and its
// decimals, read once at registration
func (s *TokenService) resolveUnderlying(ctx context.Context, caller bind.ContractCaller, token *models.Token, underlying common.Address) error {
	decimalsData, _ := chains.ERC20ABI.Pack("decimals")

	out, err := chains.Call(ctx, caller, underlying, decimalsData)
	if err != nil {
		return errors.NewConnectionError(token.Chain, err)
	}

	decimals, err := unpackDecimals(out)
	if err != nil {
		return err
	}

	address := strings.ToLower(underlying.Hex())
	token.WrappedAssetAddress = &address
	token.WrappedAssetDecimals = &decimals

	return nil
}

// List returns all tracked tokens
func (s *TokenService) List(ctx context.Context) ([]*models.Token, error) {
	return s.tokens.List(ctx)
}

// ListByChain returns the tracked tokens on one chain
func (s *TokenService) ListByChain(ctx context.Context, chainID types.ChainID) ([]*models.Token, error) {
	return s.tokens.ListByChain(ctx, chainID)
}

// Unregister removes a token from the tracked set. Its balance rows
// cascade; recorded networth history is untouched.
func (s *TokenService) Unregister(ctx context.Context, chainID types.ChainID, address string) error {
	if err := s.tokens.Delete(ctx, chainID, address); err != nil {
		return errors.NewPersistenceError("delete token", err)
	}
	return nil
}

func unpackString(method string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.NewValidationError(method, "contract returned no data")
	}

	unpacked, err := chains.ERC20ABI.Unpack(method, data)
	if err != nil {
		return "", errors.NewValidationError(method, "contract response is not an ERC-20 string")
	}

	return unpacked[0].(string), nil
}

func unpackDecimals(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, errors.NewValidationError("decimals", "contract returned no data")
	}

	unpacked, err := chains.ERC20ABI.Unpack("decimals", data)
	if err != nil {
		return 0, errors.NewValidationError("decimals", "contract response is not a uint8")
	}

	return int(unpacked[0].(uint8)), nil
}

// unpackAsset decodes an ERC-4626 asset() probe. A failed or empty
// probe, or a zero underlying, means the token is not a vault.
func unpackAsset(data []byte) (common.Address, bool) {
	if len(data) == 0 {
		return common.Address{}, false
	}

	unpacked, err := chains.ERC4626ABI.Unpack("asset", data)
	if err != nil {
		return common.Address{}, false
	}

	underlying := unpacked[0].(common.Address)
	if underlying == (common.Address{}) {
		return common.Address{}, false
	}

	return underlying, true
}
