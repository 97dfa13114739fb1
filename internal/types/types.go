// Package types provides common type definitions shared across the
// networth tracker services.
package types

import "strings"

// ChainID is the numeric EVM chain identifier (1 = Ethereum mainnet,
// 8453 = Base, 324 = zkSync Era, ...).
type ChainID int64

// ChainMainnet is the Ethereum mainnet chain id. The fiat feed reads its
// reference rate from mainnet regardless of which chains are tracked.
const ChainMainnet ChainID = 1

// ZeroAddress is the sentinel token address denoting a chain's native asset.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// IsZeroAddress reports whether addr is the native-asset sentinel.
func IsZeroAddress(addr string) bool {
	return strings.EqualFold(addr, ZeroAddress)
}

// TaskType identifies which worker pool consumes a task.
type TaskType string

const (
	// TaskNativeCheck refreshes an account's native-asset balance on one chain
	TaskNativeCheck TaskType = "native_check"
	// TaskERC20Check refreshes an account's token balances on one chain
	TaskERC20Check TaskType = "erc20_check"
)

// NativeCheckPayload is the payload of a TaskNativeCheck task.
type NativeCheckPayload struct {
	AccountID int64   `json:"accountId"`
	ChainID   ChainID `json:"chainId"`
}

// ERC20CheckPayload is the payload of a TaskERC20Check task. The scheduler
// groups all of an account's tokens on one chain into a single task so the
// worker can batch the balanceOf reads through multicall.
type ERC20CheckPayload struct {
	AccountID int64   `json:"accountId"`
	ChainID   ChainID `json:"chainId"`
	TokenIDs  []int64 `json:"tokenIds"`
}

// JobStatus represents the lifecycle state of a queued check task.
type JobStatus string

const (
	// JobStatusPending represents a task waiting to be picked up
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing represents a task currently held by a worker
	JobStatusProcessing JobStatus = "processing"
	// JobStatusDelayed represents a task waiting out its retry backoff
	JobStatusDelayed JobStatus = "delayed"
	// JobStatusDead represents a task that exhausted its retry budget
	JobStatusDead JobStatus = "dead"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
