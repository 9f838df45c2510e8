package avayield

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

// stubCaller answers view calls from a method -> uint256 table.
type stubCaller struct {
	values map[string]*big.Int
	err    error
	to     []common.Address
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.to = append(s.to, *msg.To)
	for name, method := range strategyABI.Methods {
		if bytes.Equal(msg.Data[:4], method.ID) {
			v, ok := s.values[name]
			if !ok {
				return nil, errors.New("unexpected method " + name)
			}
			return method.Outputs.Pack(v)
		}
	}
	return nil, errors.New("unknown selector")
}

func TestSnapshot(t *testing.T) {
	caller := &stubCaller{values: map[string]*big.Int{
		"balanceOf":                 big.NewInt(1_000),
		"getDepositTokensForShares": big.NewInt(1_050),
		"checkReward":               big.NewInt(7),
		"MIN_TOKENS_TO_REINVEST":    big.NewInt(5),
		"getActualLeverage":         big.NewInt(25_000),
		"totalDeposits":             big.NewInt(9_999),
	}}
	r := NewReader(caller, "")
	state, err := Snapshot(context.Background(), r, common.HexToAddress("0x01"))
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if state.Shares != "1000" || state.SharesValue != "1050" || state.PendingRewards != "7" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.ChainID != registry.AvalancheChainID {
		t.Fatalf("unexpected chain id %d", state.ChainID)
	}
	for _, to := range caller.to {
		if to != common.HexToAddress(registry.AvaYieldStrategy) {
			t.Fatalf("call sent to %s, expected default strategy", to.Hex())
		}
	}
}

func TestReaderWrapsRPCErrors(t *testing.T) {
	r := NewReader(&stubCaller{err: errors.New("connection refused")}, "0x00000000000000000000000000000000000000f1")
	_, err := r.PendingRewards(context.Background())
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if r.Address() != common.HexToAddress("0x00000000000000000000000000000000000000f1") {
		t.Fatalf("unexpected address %s", r.Address().Hex())
	}
}
