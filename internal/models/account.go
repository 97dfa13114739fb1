package models

import "time"

// Account represents a tracked wallet. Address is nullable: accounts
// without an address exist only to carry off-chain manual balances.
type Account struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Address   *string   `json:"address,omitempty" db:"address"`
	Label     *string   `json:"label,omitempty" db:"label"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// OnChain reports whether the account has an address that can be checked.
func (a *Account) OnChain() bool {
	return a.Address != nil && *a.Address != ""
}
