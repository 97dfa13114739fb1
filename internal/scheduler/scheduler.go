// Package scheduler fans tracked accounts and tokens out into balance
// check tasks. Dedup keys are deterministic per (account, chain) pair,
// so a refresh requested while the previous one is still in flight
// coalesces instead of stacking up.
package scheduler

import (
	"context"
	"fmt"

	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/queue"
	"github.com/networth-tracker/internal/types"
)

// AccountSource lists the accounts eligible for on-chain checks
type AccountSource interface {
	ListOnChain(ctx context.Context) ([]*models.Account, error)
}

// TokenSource lists all tracked tokens
type TokenSource interface {
	List(ctx context.Context) ([]*models.Token, error)
}

// Scheduler enqueues balance check tasks across both queues
type Scheduler struct {
	accounts    AccountSource
	tokens      TokenSource
	nativeQueue queue.Queue
	erc20Queue  queue.Queue
	logger      *logging.Logger
}

// NewScheduler creates a scheduler
func NewScheduler(accounts AccountSource, tokens TokenSource, nativeQueue, erc20Queue queue.Queue, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		accounts:    accounts,
		tokens:      tokens,
		nativeQueue: nativeQueue,
		erc20Queue:  erc20Queue,
		logger:      logger.WithField("component", "scheduler"),
	}
}

// NativeDedupKey is the coalescing key for an account's native check
// on a chain
func NativeDedupKey(accountID int64, chainID types.ChainID) string {
	return fmt.Sprintf("native:%d:%d", accountID, chainID)
}

// ERC20DedupKey is the coalescing key for an account's token batch on
// a chain
func ERC20DedupKey(accountID int64, chainID types.ChainID) string {
	return fmt.Sprintf("erc20:%d:%d", accountID, chainID)
}

// EnqueueAllChecks enqueues a native check per (account, chain) that
// has a registered native token, and one token batch check per
// (account, chain) with tracked tokens. Returns how many tasks were
// actually added; coalesced duplicates are not counted.
func (s *Scheduler) EnqueueAllChecks(ctx context.Context) (int, error) {
	accounts, err := s.accounts.ListOnChain(ctx)
	if err != nil {
		return 0, err
	}

	tokens, err := s.tokens.List(ctx)
	if err != nil {
		return 0, err
	}

	nativeChains, erc20ByChain := groupTokensByChain(tokens)

	enqueued := 0
	for _, account := range accounts {
		added, err := s.enqueueAccount(ctx, account.ID, nativeChains, erc20ByChain)
		if err != nil {
			return enqueued + added, err
		}
		enqueued += added
	}

	s.logger.WithFields(map[string]interface{}{
		"accounts": len(accounts),
		"enqueued": enqueued,
	}).Info("Enqueued balance checks")

	return enqueued, nil
}

// EnqueueAccountChecks enqueues every check for one account
func (s *Scheduler) EnqueueAccountChecks(ctx context.Context, account *models.Account) (int, error) {
	if !account.OnChain() {
		return 0, nil
	}

	tokens, err := s.tokens.List(ctx)
	if err != nil {
		return 0, err
	}

	nativeChains, erc20ByChain := groupTokensByChain(tokens)
	return s.enqueueAccount(ctx, account.ID, nativeChains, erc20ByChain)
}

func groupTokensByChain(tokens []*models.Token) (map[types.ChainID]bool, map[types.ChainID][]int64) {
	nativeChains := make(map[types.ChainID]bool)
	erc20ByChain := make(map[types.ChainID][]int64)
	for _, token := range tokens {
		if token.IsNative() {
			nativeChains[token.Chain] = true
		} else {
			erc20ByChain[token.Chain] = append(erc20ByChain[token.Chain], token.ID)
		}
	}
	return nativeChains, erc20ByChain
}

func (s *Scheduler) enqueueAccount(ctx context.Context, accountID int64, nativeChains map[types.ChainID]bool, erc20ByChain map[types.ChainID][]int64) (int, error) {
	enqueued := 0
	for chainID := range nativeChains {
		added, err := s.enqueueNative(ctx, accountID, chainID)
		if err != nil {
			return enqueued, err
		}
		if added {
			enqueued++
		}
	}

	for chainID, tokenIDs := range erc20ByChain {
		added, err := s.enqueueERC20(ctx, accountID, chainID, tokenIDs)
		if err != nil {
			return enqueued, err
		}
		if added {
			enqueued++
		}
	}

	return enqueued, nil
}

func (s *Scheduler) enqueueNative(ctx context.Context, accountID int64, chainID types.ChainID) (bool, error) {
	task, err := queue.NewTask(types.TaskNativeCheck, NativeDedupKey(accountID, chainID), types.NativeCheckPayload{
		AccountID: accountID,
		ChainID:   chainID,
	})
	if err != nil {
		return false, err
	}

	return s.nativeQueue.Enqueue(ctx, task)
}

func (s *Scheduler) enqueueERC20(ctx context.Context, accountID int64, chainID types.ChainID, tokenIDs []int64) (bool, error) {
	task, err := queue.NewTask(types.TaskERC20Check, ERC20DedupKey(accountID, chainID), types.ERC20CheckPayload{
		AccountID: accountID,
		ChainID:   chainID,
		TokenIDs:  tokenIDs,
	})
	if err != nil {
		return false, err
	}

	return s.erc20Queue.Enqueue(ctx, task)
}

// JobCounts reports queue depth across both queues
type JobCounts struct {
	Native queue.Counts `json:"native"`
	ERC20  queue.Counts `json:"erc20"`
}

// InProgress is the total number of checks still owed a completion
func (c JobCounts) InProgress() int64 {
	return c.Native.InProgress() + c.ERC20.InProgress()
}

// Counts reports the current depth of both queues
func (s *Scheduler) Counts(ctx context.Context) (JobCounts, error) {
	native, err := s.nativeQueue.Counts(ctx)
	if err != nil {
		return JobCounts{}, err
	}

	erc20, err := s.erc20Queue.Counts(ctx)
	if err != nil {
		return JobCounts{}, err
	}

	return JobCounts{Native: native, ERC20: erc20}, nil
}
