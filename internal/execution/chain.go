package execution

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

// Chain is the slice of an EVM JSON-RPC node the orchestrator needs.
// *ethclient.Client satisfies it.
type Chain interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// DialFunc opens a Chain for the given chain id.
type DialFunc func(ctx context.Context, chainID int64) (Chain, error)

// RPCDialer resolves the RPC endpoint for a chain (overrides first, then the
// registry defaults) and dials it with ethclient.
func RPCDialer(overrides map[int64]string) DialFunc {
	return func(ctx context.Context, chainID int64) (Chain, error) {
		url, err := registry.ResolveRPCURL(overrides, chainID)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
		}
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
		}
		return client, nil
	}
}

var erc20ABI = mustExecutionABI(registry.ERC20MinimalABI)

// ReadAllowance returns how much of token spender may move on behalf of owner.
func ReadAllowance(ctx context.Context, chain ethereum.ContractCaller, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack allowance call", err)
	}
	out, err := chain.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read allowance", err)
	}
	values, err := erc20ABI.Unpack("allowance", out)
	if err != nil || len(values) != 1 {
		return nil, clierr.New(clierr.CodeUnavailable, "decode allowance response")
	}
	allowance, ok := toBigInt(values[0])
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "decode allowance response")
	}
	return allowance, nil
}

// ApproveCalldata encodes approve(spender, amount).
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	return data, nil
}

func mustExecutionABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
