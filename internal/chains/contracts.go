package chains

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Contract ABIs used by the balance workers, the token service and the
// price oracle. Parsed once at startup; a parse failure here is a
// programming error, not a runtime condition.

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

const erc4626ABIJSON = `[
	{"constant":true,"inputs":[],"name":"asset","outputs":[{"name":"","type":"address"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"shares","type":"uint256"}],"name":"convertToAssets","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const multicall3ABIJSON = `[
	{"inputs":[{"components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}],"name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}
]`

const spotAggregatorABIJSON = `[
	{"constant":true,"inputs":[{"name":"srcToken","type":"address"},{"name":"useSrcWrappers","type":"bool"}],"name":"getRateToEth","outputs":[{"name":"weightedRate","type":"uint256"}],"type":"function"}
]`

var (
	ERC20ABI          abi.ABI
	ERC4626ABI        abi.ABI
	Multicall3ABI     abi.ABI
	SpotAggregatorABI abi.ABI
)

func init() {
	ERC20ABI = mustParseABI(erc20ABIJSON)
	ERC4626ABI = mustParseABI(erc4626ABIJSON)
	Multicall3ABI = mustParseABI(multicall3ABIJSON)
	SpotAggregatorABI = mustParseABI(spotAggregatorABIJSON)
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %v", err))
	}
	return parsed
}

// Multicall3Call is one sub-call in an aggregate3 batch
type Multicall3Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Multicall3Result is one sub-call result from an aggregate3 batch
type Multicall3Result struct {
	Success    bool
	ReturnData []byte
}

// Call issues a read-only eth_call against the latest block
func Call(ctx context.Context, caller bind.ContractCaller, to common.Address, data []byte) ([]byte, error) {
	return caller.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: data,
	}, nil)
}

// Aggregate3 batches the given sub-calls through the chain's multicall
// contract. Sub-call failures are reported per entry, not as a batch
// error.
func Aggregate3(ctx context.Context, caller bind.ContractCaller, multicall common.Address, calls []Multicall3Call) ([]Multicall3Result, error) {
	data, err := Multicall3ABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("failed to pack aggregate3 call: %w", err)
	}

	out, err := Call(ctx, caller, multicall, data)
	if err != nil {
		return nil, err
	}

	unpacked, err := Multicall3ABI.Unpack("aggregate3", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack aggregate3 result: %w", err)
	}

	results := *abi.ConvertType(unpacked[0], new([]Multicall3Result)).(*[]Multicall3Result)
	if len(results) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(results), len(calls))
	}

	return results, nil
}
