package execution

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
)

var (
	policyApproveSelector = erc20ABI.Methods["approve"].ID

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// validatePlanPolicy rejects payloads the orchestrator should never sign,
// regardless of what the provider returned.
func validatePlanPolicy(plan Plan, opts ExecuteOptions) error {
	for i, call := range plan.Calls {
		data, err := decodeHex(call.Data)
		if err != nil {
			return clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("call %d calldata", i), err)
		}
		if common.HexToAddress(call.Target) == (common.Address{}) {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("call %d targets the zero address", i))
		}
		if len(data) >= 4 && bytes.Equal(data[:4], policyApproveSelector) {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("call %d is a raw ERC20 approve; approvals must be declared as the plan approval", i))
		}
	}
	if plan.Approval == nil {
		return nil
	}
	if common.HexToAddress(plan.Approval.Spender) == (common.Address{}) {
		return clierr.New(clierr.CodeUsage, "approval has invalid spender")
	}
	amount, err := parseNonNegativeBaseUnits(plan.Approval.Amount)
	if err != nil || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, "approval has invalid amount")
	}
	if amount.Cmp(maxUint256) >= 0 && !opts.AllowMaxApproval {
		return clierr.New(clierr.CodeUsage, "unlimited approval requested; enable allow_max_approval to override")
	}
	return nil
}

func toBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		if value == nil {
			return nil, false
		}
		return value, true
	case big.Int:
		cpy := value
		return &cpy, true
	default:
		return nil, false
	}
}
