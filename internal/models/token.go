package models

import (
	"time"

	"github.com/networth-tracker/internal/types"
)

// Token represents a tracked asset on one chain. The zero address denotes
// the chain's native asset. (Chain, Address) is unique.
//
// Wrapped/yield-bearing tokens (ERC-4626 vaults) carry the underlying
// asset's address and decimals, resolved once at registration time; their
// balances are expressed and priced in terms of the underlying asset.
type Token struct {
	ID                   int64         `json:"id" db:"id"`
	Chain                types.ChainID `json:"chain" db:"chain_id"`
	Address              string        `json:"address" db:"address"`
	Symbol               string        `json:"symbol" db:"symbol"`
	Name                 string        `json:"name" db:"name"`
	Decimals             int           `json:"decimals" db:"decimals"`
	WrappedAssetAddress  *string       `json:"wrappedAssetAddress,omitempty" db:"wrapped_asset_address"`
	WrappedAssetDecimals *int          `json:"wrappedAssetDecimals,omitempty" db:"wrapped_asset_decimals"`
	CreatedAt            time.Time     `json:"createdAt" db:"created_at"`
}

// IsNative reports whether the token is the chain's native pseudo-token.
func (t *Token) IsNative() bool {
	return types.IsZeroAddress(t.Address)
}

// IsWrapped reports whether the token must be valued through an
// underlying asset.
func (t *Token) IsWrapped() bool {
	return t.WrappedAssetAddress != nil && *t.WrappedAssetAddress != ""
}

// PriceAddress returns the address whose spot rate values one unit of
// this token, and the decimal precision that rate applies to.
func (t *Token) PriceAddress() (string, int) {
	if t.IsWrapped() {
		decimals := t.Decimals
		if t.WrappedAssetDecimals != nil {
			decimals = *t.WrappedAssetDecimals
		}
		return *t.WrappedAssetAddress, decimals
	}
	return t.Address, t.Decimals
}
