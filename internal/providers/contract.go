package providers

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
)

// Contract binds an ABI to an address for read-only calls.
type Contract struct {
	Caller  ethereum.ContractCaller
	ABI     abi.ABI
	Address common.Address
}

func MustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Call runs a view method at the latest block and returns its decoded outputs.
func (c Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s", method), err)
	}
	to := c.Address
	out, err := c.Caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("call %s", method), err)
	}
	values, err := c.ABI.Unpack(method, out)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode %s", method), err)
	}
	return values, nil
}

// CallUint runs a view method with a single uint256 output.
func (c Contract) CallUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	values, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s returned %d values", method, len(values)))
	}
	return BigOutput(method, values[0])
}

func BigOutput(method string, v any) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s returned a non-integer value", method))
	}
	return n, nil
}
