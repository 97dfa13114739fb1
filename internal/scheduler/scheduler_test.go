package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/queue"
	"github.com/networth-tracker/internal/types"
)

type fakeAccounts struct {
	accounts []*models.Account
}

func (f *fakeAccounts) ListOnChain(ctx context.Context) ([]*models.Account, error) {
	var onchain []*models.Account
	for _, account := range f.accounts {
		if account.OnChain() {
			onchain = append(onchain, account)
		}
	}
	return onchain, nil
}

type fakeTokens struct {
	tokens []*models.Token
}

func (f *fakeTokens) List(ctx context.Context) ([]*models.Token, error) {
	return f.tokens, nil
}

func strptr(s string) *string { return &s }

func fixture(accounts []*models.Account, tokens []*models.Token) (*Scheduler, queue.Queue, queue.Queue) {
	opts := queue.Options{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMax:        time.Second,
		VisibilityTimeout: time.Minute,
	}
	nativeQueue := queue.NewMemoryQueue(opts)
	erc20Queue := queue.NewMemoryQueue(opts)

	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	s := NewScheduler(&fakeAccounts{accounts: accounts}, &fakeTokens{tokens: tokens}, nativeQueue, erc20Queue, logger)
	return s, nativeQueue, erc20Queue
}

func testAccounts() []*models.Account {
	return []*models.Account{
		{ID: 1, Name: "main", Address: strptr("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")},
		{ID: 2, Name: "cold", Address: strptr("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")},
		{ID: 3, Name: "manual only"}, // no address, never checked
	}
}

func testTokens() []*models.Token {
	return []*models.Token{
		{ID: 10, Chain: types.ChainMainnet, Address: types.ZeroAddress, Symbol: "ETH"},
		{ID: 20, Chain: types.ChainMainnet, Address: "0x1111111111111111111111111111111111111111", Symbol: "USDC"},
		{ID: 21, Chain: types.ChainMainnet, Address: "0x2222222222222222222222222222222222222222", Symbol: "DAI"},
	}
}

func TestEnqueueAllChecks_FansOut(t *testing.T) {
	s, nativeQueue, erc20Queue := fixture(testAccounts(), testTokens())
	ctx := context.Background()

	enqueued, err := s.EnqueueAllChecks(ctx)
	require.NoError(t, err)

	// 2 on-chain accounts x (1 native + 1 token batch)
	assert.Equal(t, 4, enqueued)

	nativeCounts, err := nativeQueue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), nativeCounts.Pending)

	erc20Counts, err := erc20Queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), erc20Counts.Pending, "one token batch per account")
}

func TestEnqueueAllChecks_GroupsTokensPerAccountChain(t *testing.T) {
	s, _, erc20Queue := fixture(testAccounts(), testTokens())
	ctx := context.Background()

	_, err := s.EnqueueAllChecks(ctx)
	require.NoError(t, err)

	counts, err := erc20Queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Pending, "one token batch per on-chain account")

	task, err := erc20Queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, types.TaskERC20Check, task.Type)

	var payload types.ERC20CheckPayload
	require.NoError(t, json.Unmarshal(task.Payload, &payload))
	assert.ElementsMatch(t, []int64{20, 21}, payload.TokenIDs)
	assert.Equal(t, types.ChainMainnet, payload.ChainID)
}

func TestEnqueueAllChecks_CoalescesRepeats(t *testing.T) {
	s, _, _ := fixture(testAccounts(), testTokens())
	ctx := context.Background()

	first, err := s.EnqueueAllChecks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, first)

	// everything is still in flight: nothing new is added
	second, err := s.EnqueueAllChecks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestEnqueueAllChecks_ReenqueuesAfterCompletion(t *testing.T) {
	s, nativeQueue, _ := fixture(
		[]*models.Account{{ID: 1, Name: "main", Address: strptr("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")}},
		[]*models.Token{{ID: 10, Chain: types.ChainMainnet, Address: types.ZeroAddress}},
	)
	ctx := context.Background()

	_, err := s.EnqueueAllChecks(ctx)
	require.NoError(t, err)

	task, err := nativeQueue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, nativeQueue.Ack(ctx, task))

	enqueued, err := s.EnqueueAllChecks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)
}

func TestEnqueueAllChecks_NoTokensNothingToDo(t *testing.T) {
	s, _, _ := fixture(testAccounts(), nil)

	enqueued, err := s.EnqueueAllChecks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, enqueued)
}

func TestCounts_CombinesQueues(t *testing.T) {
	s, _, _ := fixture(testAccounts(), testTokens())
	ctx := context.Background()

	_, err := s.EnqueueAllChecks(ctx)
	require.NoError(t, err)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Native.Pending)
	assert.Equal(t, int64(2), counts.ERC20.Pending)
	assert.Equal(t, int64(4), counts.InProgress())
}

func TestDedupKeys(t *testing.T) {
	assert.Equal(t, "native:1:1", NativeDedupKey(1, types.ChainMainnet))
	assert.Equal(t, "erc20:7:324", ERC20DedupKey(7, types.ChainID(324)))
}
