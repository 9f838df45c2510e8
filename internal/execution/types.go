package execution

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
)

type Status string

type StepType string

const (
	StatusSuccess        Status = "success"
	StatusPartialFailure Status = "partial_failure"
	StatusFailure        Status = "failure"
)

const (
	StepTypeApproval StepType = "approval"
	StepTypeCall     StepType = "call"
)

// Call is one contract interaction. Data is 0x-prefixed calldata and Value is
// the native amount in wei.
type Call struct {
	Label  string `json:"label"`
	Target string `json:"target"`
	Data   string `json:"data"`
	Value  string `json:"value"`
}

// Approval asks the orchestrator to make sure Spender may move Amount of Token.
type Approval struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// Plan is the provider payload frozen at preview time. The orchestrator only
// reads it; nothing in it is recomputed after the user confirms.
type Plan struct {
	ChainID  int64     `json:"chain_id"`
	Owner    string    `json:"owner"`
	Approval *Approval `json:"approval,omitempty"`
	Calls    []Call    `json:"calls"`
}

func (p Plan) Validate() error {
	if p.ChainID <= 0 {
		return clierr.New(clierr.CodeUsage, "plan is missing chain id")
	}
	if len(p.Calls) == 0 {
		return clierr.New(clierr.CodeUsage, "plan has no calls")
	}
	if strings.TrimSpace(p.Owner) != "" && !common.IsHexAddress(p.Owner) {
		return clierr.New(clierr.CodeUsage, "plan owner is not an address")
	}
	for i, call := range p.Calls {
		if !common.IsHexAddress(strings.TrimSpace(call.Target)) {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("call %d has invalid target address", i))
		}
		if _, err := parseNonNegativeBaseUnits(call.Value); err != nil {
			return clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("call %d value", i), err)
		}
	}
	if p.Approval != nil {
		if !common.IsHexAddress(p.Approval.Token) || !common.IsHexAddress(p.Approval.Spender) {
			return clierr.New(clierr.CodeUsage, "approval token and spender must be addresses")
		}
		amount, err := parseNonNegativeBaseUnits(p.Approval.Amount)
		if err != nil || amount.Sign() == 0 {
			return clierr.New(clierr.CodeUsage, "approval amount must be a positive integer")
		}
	}
	return nil
}

type TxRef struct {
	Step    StepType `json:"step"`
	Label   string   `json:"label"`
	Hash    string   `json:"hash"`
	Nonce   uint64   `json:"nonce"`
	ChainID int64    `json:"chain_id"`
}

// Result is the outcome of one Execute call. Txs lists every transaction that
// reached the network, in broadcast order.
type Result struct {
	ExecutionID string    `json:"execution_id"`
	Status      Status    `json:"status"`
	ChainID     int64     `json:"chain_id"`
	From        string    `json:"from"`
	Txs         []TxRef   `json:"transactions"`
	Error       string    `json:"error,omitempty"`
	ErrorType   string    `json:"error_type,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Err converts a non-successful result into a typed error.
func (r Result) Err() error {
	switch r.Status {
	case StatusSuccess:
		return nil
	case StatusPartialFailure:
		return clierr.New(clierr.CodePartialFailure, fmt.Sprintf("partial failure after %d broadcast transaction(s): %s", len(r.Txs), r.Error))
	default:
		return clierr.New(clierr.CodeFailure, "execution failed: "+r.Error)
	}
}

// Summary renders the result as a short user-facing message.
func (r Result) Summary() string {
	var b strings.Builder
	switch r.Status {
	case StatusSuccess:
		b.WriteString("Transaction sent.")
	case StatusPartialFailure:
		b.WriteString("Partially executed: some transactions were broadcast but the action did not complete. Do not retry blindly; review the transactions below.")
	default:
		b.WriteString("Transaction failed.")
	}
	for _, tx := range r.Txs {
		fmt.Fprintf(&b, "\n- %s (%s): %s", tx.Label, tx.Step, tx.Hash)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "\nReason: %s", r.Error)
	}
	return b.String()
}

func parseNonNegativeBaseUnits(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return big.NewInt(0), nil
	}
	out, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer value %q", v)
	}
	if out.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	return out, nil
}
