package execution

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution/signer"
	"github.com/rs/zerolog"
)

const testSignerKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

type fakeChain struct {
	mu sync.Mutex

	id          int64
	allowance   *big.Int
	nonce       uint64
	estimateErr map[common.Address]error
	callErr     error
	sendErr     error
	receipts    map[common.Hash]uint64

	sent   []*types.Transaction
	calls  int
	closed bool
}

func newFakeChain(id int64) *fakeChain {
	return &fakeChain{
		id:          id,
		allowance:   big.NewInt(0),
		nonce:       7,
		estimateErr: map[common.Address]error{},
		receipts:    map[common.Hash]uint64{},
	}
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(f.id), nil }

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	// Deliberately stale: the node never reports our own pending txs.
	return f.nonce, nil
}

func (f *fakeChain) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := f.estimateErr[*msg.To]; err != nil {
		return 0, err
	}
	return 100_000, nil
}

func (f *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(25_000_000_000)}, nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(msg.Data) >= 4 && bytes.Equal(msg.Data[:4], erc20ABI.Methods["allowance"].ID) {
		return erc20ABI.Methods["allowance"].Outputs.Pack(f.allowance)
	}
	f.calls++
	return nil, f.callErr
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: status}, nil
}

func (f *fakeChain) Close() { f.closed = true }

func testSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testSignerKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	return s
}

func newTestOrchestrator(chain *fakeChain, opts ExecuteOptions) *Orchestrator {
	dial := func(context.Context, int64) (Chain, error) { return chain, nil }
	return NewOrchestrator(dial, opts, zerolog.Nop())
}

func approvalPlan(owner common.Address) Plan {
	return Plan{
		ChainID:  43114,
		Owner:    owner.Hex(),
		Approval: &Approval{Token: testToken, Spender: testSpender, Amount: "100000000"},
		Calls:    []Call{{Label: "bridge", Target: testTarget, Data: "0xdeadbeef", Value: "0"}},
	}
}

func TestExecuteSufficientAllowanceSendsOneTransaction(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	chain.allowance = big.NewInt(500_000_000)

	res := newTestOrchestrator(chain, DefaultExecuteOptions()).Execute(context.Background(), approvalPlan(s.Address()), s)
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Error)
	}
	if len(res.Txs) != 1 || len(chain.sent) != 1 {
		t.Fatalf("expected exactly one transaction, got refs=%d sent=%d", len(res.Txs), len(chain.sent))
	}
	if res.Txs[0].Step != StepTypeCall || res.Txs[0].Hash != chain.sent[0].Hash().Hex() {
		t.Fatalf("unexpected tx ref %+v", res.Txs[0])
	}
	if chain.calls != 1 {
		t.Fatalf("expected main call to be simulated once, got %d", chain.calls)
	}
	if !chain.closed {
		t.Fatal("expected chain connection to be closed")
	}
	if res.Err() != nil {
		t.Fatalf("expected nil error for success, got %v", res.Err())
	}
}

func TestExecuteInsufficientAllowanceApprovesThenCalls(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	chain.allowance = big.NewInt(1)

	res := newTestOrchestrator(chain, DefaultExecuteOptions()).Execute(context.Background(), approvalPlan(s.Address()), s)
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Error)
	}
	if len(res.Txs) != 2 {
		t.Fatalf("expected approval and main refs, got %+v", res.Txs)
	}
	if res.Txs[0].Step != StepTypeApproval || res.Txs[1].Step != StepTypeCall {
		t.Fatalf("unexpected step order %+v", res.Txs)
	}
	if res.Txs[0].Nonce != 7 || res.Txs[1].Nonce != 8 {
		t.Fatalf("expected sequential nonces 7 and 8, got %d and %d", res.Txs[0].Nonce, res.Txs[1].Nonce)
	}

	approve := chain.sent[0]
	if *approve.To() != common.HexToAddress(testToken) {
		t.Fatalf("approval sent to %s", approve.To().Hex())
	}
	args, err := erc20ABI.Methods["approve"].Inputs.Unpack(approve.Data()[4:])
	if err != nil {
		t.Fatalf("unpack approve: %v", err)
	}
	if args[0].(common.Address) != common.HexToAddress(testSpender) || args[1].(*big.Int).String() != "100000000" {
		t.Fatalf("unexpected approve args %v", args)
	}
	if chain.calls != 0 {
		t.Fatal("expected simulation to be skipped while approval is unconfirmed")
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(43114)), chain.sent[1])
	if err != nil || from != s.Address() {
		t.Fatalf("main tx not signed by signer: %v %s", err, from.Hex())
	}
}

func TestExecuteEstimationFailureAfterApprovalIsPartial(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	chain.estimateErr[common.HexToAddress(testTarget)] = errors.New("execution reverted")

	res := newTestOrchestrator(chain, DefaultExecuteOptions()).Execute(context.Background(), approvalPlan(s.Address()), s)
	if res.Status != StatusPartialFailure {
		t.Fatalf("expected partial failure, got %s", res.Status)
	}
	if len(res.Txs) != 1 || res.Txs[0].Step != StepTypeApproval {
		t.Fatalf("expected approval ref only, got %+v", res.Txs)
	}
	if res.Error == "" || res.ErrorType != "provider_unavailable" {
		t.Fatalf("expected estimation reason, got %q (%s)", res.Error, res.ErrorType)
	}
	if !clierr.Is(res.Err(), clierr.CodePartialFailure) {
		t.Fatalf("expected partial failure error, got %v", res.Err())
	}
	if len(chain.sent) != 1 {
		t.Fatalf("expected no retry or further broadcast, got %d", len(chain.sent))
	}
}

func TestExecuteNothingBroadcastIsFailure(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	chain.allowance = big.NewInt(500_000_000)
	chain.sendErr = errors.New("insufficient funds for gas")

	res := newTestOrchestrator(chain, DefaultExecuteOptions()).Execute(context.Background(), approvalPlan(s.Address()), s)
	if res.Status != StatusFailure || len(res.Txs) != 0 {
		t.Fatalf("expected failure without refs, got %s %+v", res.Status, res.Txs)
	}
	if !clierr.Is(res.Err(), clierr.CodeFailure) {
		t.Fatalf("expected failure error, got %v", res.Err())
	}
}

func TestExecuteRejectsChainMismatch(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(1)

	res := newTestOrchestrator(chain, DefaultExecuteOptions()).Execute(context.Background(), approvalPlan(s.Address()), s)
	if res.Status != StatusFailure || len(chain.sent) != 0 {
		t.Fatalf("expected failure with nothing sent, got %s sent=%d", res.Status, len(chain.sent))
	}
}

func TestExecuteRejectsSignerMismatch(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	plan := approvalPlan(common.HexToAddress("0x0000000000000000000000000000000000000def"))

	res := newTestOrchestrator(chain, DefaultExecuteOptions()).Execute(context.Background(), plan, s)
	if res.Status != StatusFailure || res.ErrorType != "signer_error" {
		t.Fatalf("expected signer failure, got %s %s", res.Status, res.ErrorType)
	}
	if len(chain.sent) != 0 {
		t.Fatal("expected nothing to be sent")
	}
}

func TestExecuteWaitApprovalRevertIsPartial(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	opts := DefaultExecuteOptions()
	opts.WaitApproval = true
	opts.PollInterval = time.Millisecond
	opts.ApprovalTimeout = time.Second

	orch := newTestOrchestrator(chain, opts)
	orch.dial = func(context.Context, int64) (Chain, error) {
		return &revertingChain{fakeChain: chain}, nil
	}
	res := orch.Execute(context.Background(), approvalPlan(s.Address()), s)
	if res.Status != StatusPartialFailure || len(res.Txs) != 1 {
		t.Fatalf("expected partial failure with approval ref, got %s %+v", res.Status, res.Txs)
	}
}

func TestExecuteWaitApprovalTimeout(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	opts := DefaultExecuteOptions()
	opts.WaitApproval = true
	opts.PollInterval = time.Millisecond
	opts.ApprovalTimeout = 20 * time.Millisecond

	res := newTestOrchestrator(chain, opts).Execute(context.Background(), approvalPlan(s.Address()), s)
	if res.Status != StatusPartialFailure || res.ErrorType != "timeout" {
		t.Fatalf("expected partial failure on timeout, got %s %s", res.Status, res.ErrorType)
	}
}

func singleCallPlan(owner common.Address) Plan {
	return Plan{
		ChainID: 43114,
		Owner:   owner.Hex(),
		Calls:   []Call{{Label: "vault.deposit", Target: testTarget, Data: "0xdeadbeef", Value: "0"}},
	}
}

func TestExecuteWaitReceiptRevertWithoutApprovalIsFailure(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	opts := DefaultExecuteOptions()
	opts.WaitReceipt = true
	opts.PollInterval = time.Millisecond
	opts.ReceiptTimeout = time.Second

	orch := newTestOrchestrator(chain, opts)
	orch.dial = func(context.Context, int64) (Chain, error) {
		return &revertingChain{fakeChain: chain}, nil
	}
	res := orch.Execute(context.Background(), singleCallPlan(s.Address()), s)
	if res.Status != StatusFailure {
		t.Fatalf("expected failure for a lone reverted call, got %s (%s)", res.Status, res.Error)
	}
	if len(res.Txs) != 1 || res.Txs[0].Step != StepTypeCall || res.Txs[0].Hash != chain.sent[0].Hash().Hex() {
		t.Fatalf("expected the reverted call ref to be kept, got %+v", res.Txs)
	}
	if !clierr.Is(res.Err(), clierr.CodeFailure) {
		t.Fatalf("expected failure error, got %v", res.Err())
	}
	if !strings.HasPrefix(res.Summary(), "Transaction failed.") || !strings.Contains(res.Summary(), "reverted on-chain") {
		t.Fatalf("unexpected summary %q", res.Summary())
	}
}

func TestExecuteWaitReceiptTimeoutWithoutApprovalIsFailure(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	opts := DefaultExecuteOptions()
	opts.WaitReceipt = true
	opts.PollInterval = time.Millisecond
	opts.ReceiptTimeout = 20 * time.Millisecond

	res := newTestOrchestrator(chain, opts).Execute(context.Background(), singleCallPlan(s.Address()), s)
	if res.Status != StatusFailure || res.ErrorType != "timeout" {
		t.Fatalf("expected failure on receipt timeout, got %s %s", res.Status, res.ErrorType)
	}
	if len(res.Txs) != 1 {
		t.Fatalf("expected the broadcast call ref, got %+v", res.Txs)
	}
}

func TestExecuteWaitReceiptRevertAfterApprovalIsPartial(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	opts := DefaultExecuteOptions()
	opts.WaitReceipt = true
	opts.PollInterval = time.Millisecond
	opts.ReceiptTimeout = time.Second

	orch := newTestOrchestrator(chain, opts)
	orch.dial = func(context.Context, int64) (Chain, error) {
		return &revertingChain{fakeChain: chain}, nil
	}
	res := orch.Execute(context.Background(), approvalPlan(s.Address()), s)
	if res.Status != StatusPartialFailure || len(res.Txs) != 2 {
		t.Fatalf("expected partial failure with both refs, got %s %+v", res.Status, res.Txs)
	}
}

func TestExecuteSecondCallFailureIsPartial(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	second := "0x0000000000000000000000000000000000000bbb"
	chain.estimateErr[common.HexToAddress(second)] = errors.New("execution reverted")
	plan := singleCallPlan(s.Address())
	plan.Calls = append(plan.Calls, Call{Label: "vault.stake", Target: second, Data: "0x01", Value: "0"})

	res := newTestOrchestrator(chain, DefaultExecuteOptions()).Execute(context.Background(), plan, s)
	if res.Status != StatusPartialFailure || len(res.Txs) != 1 {
		t.Fatalf("expected partial failure after the first call landed, got %s %+v", res.Status, res.Txs)
	}
}

func TestExecuteKeepsUnitGasMultiplier(t *testing.T) {
	s := testSigner(t)
	chain := newFakeChain(43114)
	opts := DefaultExecuteOptions()
	opts.GasMultiplier = 1

	res := newTestOrchestrator(chain, opts).Execute(context.Background(), singleCallPlan(s.Address()), s)
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Error)
	}
	if gas := chain.sent[0].Gas(); gas != 100_000 {
		t.Fatalf("expected unscaled gas limit, got %d", gas)
	}
}

// revertingChain reports every receipt as reverted.
type revertingChain struct {
	*fakeChain
}

func (r *revertingChain) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusFailed}, nil
}
