package models

import "time"

// Balance is the latest observed holding of one token by one account.
// (AccountID, TokenID) is the composite key; workers upsert on it and no
// other component writes these rows. A zero amount still produces a row so
// CheckedAt keeps tracking even positions that emptied out.
//
// Invariant: EthValue == Amount * rate-to-ETH at CheckedAt.
type Balance struct {
	AccountID int64     `json:"accountId" db:"account_id"`
	TokenID   int64     `json:"tokenId" db:"token_id"`
	Amount    float64   `json:"amount" db:"amount"`
	EthValue  float64   `json:"ethValue" db:"eth_value"`
	CheckedAt time.Time `json:"checkedAt" db:"checked_at"`
}

// OffchainBalance is a manual account-scoped entry valued directly in the
// base unit, independent of any token.
type OffchainBalance struct {
	ID        int64     `json:"id" db:"id"`
	AccountID int64     `json:"accountId" db:"account_id"`
	Name      string    `json:"name" db:"name"`
	EthValue  float64   `json:"ethValue" db:"eth_value"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
