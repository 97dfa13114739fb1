// Package models defines the persistent entities of the networth tracker.
package models

import (
	"time"

	"github.com/networth-tracker/internal/types"
)

// Chain represents a tracked EVM chain and its RPC endpoint.
// Chains are configuration-level entities: immutable once added except by
// explicit delete.
type Chain struct {
	ID               types.ChainID `json:"id" db:"id"`
	Name             string        `json:"name" db:"name"`
	RPCURL           string        `json:"rpcUrl" db:"rpc_url"`
	MulticallAddress string        `json:"multicallAddress" db:"multicall_address"`
	CreatedAt        time.Time     `json:"createdAt" db:"created_at"`
}
