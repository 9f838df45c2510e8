package execution

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution/signer"
	"github.com/ggonzalez94/defi-intents/internal/metrics"
	"github.com/rs/zerolog"
)

type ExecuteOptions struct {
	// Simulate runs eth_call before each main call. It is skipped when an
	// approval was broadcast in the same run and not awaited.
	Simulate        bool
	PollInterval    time.Duration
	WaitApproval    bool
	ApprovalTimeout time.Duration
	WaitReceipt     bool
	ReceiptTimeout  time.Duration
	GasMultiplier   float64
	// Fee caps in gwei; empty means derive from the node.
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	AllowMaxApproval   bool
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		Simulate:        true,
		PollInterval:    2 * time.Second,
		ApprovalTimeout: 2 * time.Minute,
		ReceiptTimeout:  2 * time.Minute,
		GasMultiplier:   1.2,
	}
}

// Orchestrator drives a frozen Plan on chain: allowance check, optional
// approval, then every call in order. A broadcast transaction is never
// retried.
type Orchestrator struct {
	dial   DialFunc
	opts   ExecuteOptions
	logger zerolog.Logger
	now    func() time.Time
}

func NewOrchestrator(dial DialFunc, opts ExecuteOptions, logger zerolog.Logger) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = 2 * time.Minute
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 0 {
		opts.GasMultiplier = 1.2
	}
	return &Orchestrator{
		dial:   dial,
		opts:   opts,
		logger: logger.With().Str("component", "orchestrator").Logger(),
		now:    time.Now,
	}
}

// run carries per-execution state.
type run struct {
	chain     Chain
	chainID   *big.Int
	signer    signer.Signer
	result    *Result
	lastNonce *uint64
	// pendingApproval is set when an approval was broadcast but not awaited.
	pendingApproval bool
	// committed is set once a step landed that a later failure cannot undo:
	// any approval broadcast, or a call that completed.
	committed bool
	logger    zerolog.Logger
}

// Execute never returns an error: every outcome is expressed in the Result.
// Use Result.Err for a typed error.
func (o *Orchestrator) Execute(ctx context.Context, plan Plan, txSigner signer.Signer) Result {
	res := Result{
		ExecutionID: NewExecutionID(),
		ChainID:     plan.ChainID,
		StartedAt:   o.now().UTC(),
		Txs:         []TxRef{},
	}
	logger := o.logger.With().Str("execution_id", res.ExecutionID).Int64("chain_id", plan.ChainID).Logger()

	if txSigner == nil {
		return o.finish(logger, res, false, clierr.New(clierr.CodeSigner, "missing signer"))
	}
	res.From = txSigner.Address().Hex()
	if err := plan.Validate(); err != nil {
		return o.finish(logger, res, false, err)
	}
	if plan.Owner != "" && !strings.EqualFold(common.HexToAddress(plan.Owner).Hex(), res.From) {
		return o.finish(logger, res, false, clierr.New(clierr.CodeSigner, fmt.Sprintf("signer %s does not match previewed address %s", res.From, plan.Owner)))
	}
	if err := validatePlanPolicy(plan, o.opts); err != nil {
		return o.finish(logger, res, false, err)
	}

	chain, err := o.dial(ctx, plan.ChainID)
	if err != nil {
		return o.finish(logger, res, false, err)
	}
	defer chain.Close()

	chainID, err := chain.ChainID(ctx)
	if err != nil {
		return o.finish(logger, res, false, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err))
	}
	if chainID.Int64() != plan.ChainID {
		return o.finish(logger, res, false, clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc chain id %d does not match plan chain id %d", chainID.Int64(), plan.ChainID)))
	}

	r := &run{chain: chain, chainID: chainID, signer: txSigner, result: &res, logger: logger}

	if plan.Approval != nil {
		if err := o.ensureAllowance(ctx, r, *plan.Approval); err != nil {
			return o.finish(logger, res, r.committed, err)
		}
	}
	for _, call := range plan.Calls {
		hash, err := o.sendCall(ctx, r, call)
		if err != nil {
			return o.finish(logger, res, r.committed, err)
		}
		if o.opts.WaitReceipt {
			if err := o.waitReceipt(ctx, chain, hash, o.opts.ReceiptTimeout); err != nil {
				return o.finish(logger, res, r.committed, err)
			}
		}
		r.committed = true
	}
	return o.finish(logger, res, r.committed, nil)
}

func (o *Orchestrator) ensureAllowance(ctx context.Context, r *run, approval Approval) error {
	token := common.HexToAddress(approval.Token)
	spender := common.HexToAddress(approval.Spender)
	required, _ := parseNonNegativeBaseUnits(approval.Amount)

	allowance, err := ReadAllowance(ctx, r.chain, token, r.signer.Address(), spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(required) >= 0 {
		r.logger.Debug().Str("token", token.Hex()).Str("allowance", allowance.String()).Msg("allowance sufficient; skipping approval")
		return nil
	}

	data, err := ApproveCalldata(spender, required)
	if err != nil {
		return err
	}
	msg := ethereum.CallMsg{From: r.signer.Address(), To: &token, Value: big.NewInt(0), Data: data}
	hash, err := o.broadcast(ctx, r, StepTypeApproval, "erc20.approve", msg)
	if err != nil {
		return err
	}
	r.committed = true
	if !o.opts.WaitApproval {
		r.pendingApproval = true
		return nil
	}
	return o.waitReceipt(ctx, r.chain, hash, o.opts.ApprovalTimeout)
}

func (o *Orchestrator) sendCall(ctx context.Context, r *run, call Call) (common.Hash, error) {
	target := common.HexToAddress(call.Target)
	data, err := decodeHex(call.Data)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUsage, "decode call data", err)
	}
	value, err := parseNonNegativeBaseUnits(call.Value)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUsage, "parse call value", err)
	}
	msg := ethereum.CallMsg{From: r.signer.Address(), To: &target, Value: value, Data: data}

	if o.opts.Simulate && !r.pendingApproval {
		if _, err := r.chain.CallContract(ctx, msg, nil); err != nil {
			return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("simulate %s (eth_call)", labelOr(call.Label, "call")), err)
		}
	}
	return o.broadcast(ctx, r, StepTypeCall, labelOr(call.Label, "call"), msg)
}

// broadcast estimates fees, takes a fresh nonce, signs and sends msg. On
// success the transaction is appended to the result.
func (o *Orchestrator) broadcast(ctx context.Context, r *run, step StepType, label string, msg ethereum.CallMsg) (common.Hash, error) {
	gasLimit, err := r.chain.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("estimate gas for %s", label), err)
	}
	gasLimit = uint64(float64(gasLimit) * o.opts.GasMultiplier)

	tipCap, err := resolveTipCap(ctx, r.chain, o.opts.MaxPriorityFeeGwei)
	if err != nil {
		return common.Hash{}, err
	}
	header, err := r.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := big.NewInt(1_000_000_000)
	if header != nil && header.BaseFee != nil {
		baseFee = header.BaseFee
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, o.opts.MaxFeeGwei)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := r.chain.PendingNonceAt(ctx, msg.From)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	// The node may not list our previous broadcast as pending yet.
	if r.lastNonce != nil && nonce <= *r.lastNonce {
		nonce = *r.lastNonce + 1
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   r.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        msg.To,
		Value:     msg.Value,
		Data:      msg.Data,
	})
	signed, err := r.signer.SignTx(r.chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := r.chain.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("broadcast %s", label), err)
	}

	r.lastNonce = &nonce
	r.result.Txs = append(r.result.Txs, TxRef{
		Step:    step,
		Label:   label,
		Hash:    signed.Hash().Hex(),
		Nonce:   nonce,
		ChainID: r.chainID.Int64(),
	})
	chainLabel := strconv.FormatInt(r.chainID.Int64(), 10)
	metrics.TransactionsBroadcast.WithLabelValues(chainLabel, string(step)).Inc()
	metrics.GasPrice.WithLabelValues(chainLabel).Set(weiToGwei(feeCap))
	r.logger.Info().
		Str("step", string(step)).
		Str("label", label).
		Str("tx_hash", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gasLimit).
		Msg("transaction broadcast")
	return signed.Hash(), nil
}

func (o *Orchestrator) waitReceipt(ctx context.Context, chain Chain, hash common.Hash, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := chain.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return clierr.New(clierr.CodeFailure, fmt.Sprintf("transaction %s reverted on-chain", hash.Hex()))
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			o.logger.Debug().Err(err).Str("tx_hash", hash.Hex()).Msg("receipt poll failed")
		}
		select {
		case <-waitCtx.Done():
			return clierr.Wrap(clierr.CodeTimeout, fmt.Sprintf("timed out waiting for receipt of %s", hash.Hex()), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// finish classifies the run: success without error, partial failure when an
// earlier step was committed on chain, failure otherwise. A main call that
// reverts or times out on its own is a failure and keeps its tx ref.
func (o *Orchestrator) finish(logger zerolog.Logger, res Result, committed bool, err error) Result {
	res.FinishedAt = o.now().UTC()
	switch {
	case err == nil:
		res.Status = StatusSuccess
	case committed:
		res.Status = StatusPartialFailure
	default:
		res.Status = StatusFailure
	}
	if err != nil {
		res.Error = err.Error()
		code := clierr.CodeInternal
		if cErr, ok := clierr.As(err); ok {
			code = cErr.Code
		}
		res.ErrorType = clierr.TypeName(code)
	}

	chainLabel := strconv.FormatInt(res.ChainID, 10)
	metrics.Executions.WithLabelValues(chainLabel, string(res.Status)).Inc()
	metrics.ExecutionLatency.WithLabelValues(chainLabel).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())

	evt := logger.Info()
	switch res.Status {
	case StatusPartialFailure:
		evt = logger.Warn()
	case StatusFailure:
		evt = logger.Error()
	}
	evt.Str("status", string(res.Status)).Int("transactions", len(res.Txs)).Str("error", res.Error).Msg("execution finished")
	return res
}

func resolveTipCap(ctx context.Context, chain Chain, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max_priority_fee_gwei", err)
		}
		return v, nil
	}
	tipCap, err := chain.SuggestGasTipCap(ctx)
	if err != nil || tipCap == nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max_fee_gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "max_fee_gwei must be >= max_priority_fee_gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

func weiToGwei(wei *big.Int) float64 {
	f, _ := new(big.Rat).SetFrac(wei, big.NewInt(1_000_000_000)).Float64()
	return f
}

func labelOr(label, fallback string) string {
	if strings.TrimSpace(label) == "" {
		return fallback
	}
	return label
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
