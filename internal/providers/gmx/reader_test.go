package gmx

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/providers"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

var usd = new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)

func dollars(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), usd) }

type stubCaller struct {
	outputs map[string][]any
	inputs  map[string][]any
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	for name, method := range readerABI.Methods {
		if !bytes.Equal(msg.Data[:4], method.ID) {
			continue
		}
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		if s.inputs == nil {
			s.inputs = map[string][]any{}
		}
		s.inputs[name] = args
		out, ok := s.outputs[name]
		if !ok {
			return nil, errors.New("unexpected method " + name)
		}
		return method.Outputs.Pack(out...)
	}
	return nil, errors.New("unknown selector")
}

func TestPreviewOpen(t *testing.T) {
	caller := &stubCaller{outputs: map[string][]any{
		"previewOpenPosition": {dollars(3000), dollars(2500), dollars(1)},
	}}
	market, _ := registry.PerpsMarketByPair("eth-usd")
	got, err := NewReader(caller, "").PreviewOpen(context.Background(), providers.PerpsOpenRequest{
		Market: market, IsLong: true, SizeUSD: dollars(500), Collateral: dollars(100),
	})
	if err != nil {
		t.Fatalf("PreviewOpen failed: %v", err)
	}
	if got.EntryPrice != dollars(3000).String() || got.FeeUSD != dollars(1).String() {
		t.Fatalf("unexpected preview %+v", got)
	}
	args := caller.inputs["previewOpenPosition"]
	if args[0].(common.Address) != common.HexToAddress(market.IndexToken) || args[3].(bool) != true {
		t.Fatalf("unexpected call args %v", args)
	}
}

func TestPreviewCloseUsesPosition(t *testing.T) {
	index := common.HexToAddress("0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7")
	caller := &stubCaller{outputs: map[string][]any{
		"getPosition":          {index, dollars(1000), dollars(200), false},
		"previewPositionClose": {dollars(190), dollars(2), big.NewInt(0)},
	}}
	key := common.HexToHash("0x01")
	got, err := NewReader(caller, "").PreviewClose(context.Background(), key)
	if err != nil {
		t.Fatalf("PreviewClose failed: %v", err)
	}
	if got.Position.IsLong || got.Position.SizeUSD != dollars(1000).String() {
		t.Fatalf("unexpected position %+v", got.Position)
	}
	if got.ReturnUSD != dollars(190).String() {
		t.Fatalf("unexpected return %s", got.ReturnUSD)
	}
	args := caller.inputs["previewPositionClose"]
	if args[1].(*big.Int).Cmp(dollars(1000)) != 0 || args[2].(*big.Int).Cmp(dollars(200)) != 0 {
		t.Fatalf("close preview used wrong size/collateral: %v", args)
	}
}

func TestPreviewLeverage(t *testing.T) {
	index := common.HexToAddress("0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7")
	caller := &stubCaller{outputs: map[string][]any{
		"getPosition":                       {index, dollars(1000), dollars(200), true},
		"previewPositionLeverageAdjustment": {dollars(-100), dollars(1), dollars(20)},
	}}
	got, err := NewReader(caller, "").PreviewLeverage(context.Background(), common.HexToHash("0x02"), big.NewInt(100_000))
	if err != nil {
		t.Fatalf("PreviewLeverage failed: %v", err)
	}
	if got.CollateralDelta != dollars(-100).String() {
		t.Fatalf("unexpected delta %s", got.CollateralDelta)
	}
	if caller.inputs["previewPositionLeverageAdjustment"][3].(*big.Int).Int64() != 100_000 {
		t.Fatal("expected leverage bps to be forwarded")
	}
}

func TestPositionNotFound(t *testing.T) {
	caller := &stubCaller{outputs: map[string][]any{
		"getPosition": {common.Address{}, big.NewInt(0), big.NewInt(0), false},
	}}
	_, err := NewReader(caller, "").Position(context.Background(), common.HexToHash("0x03"))
	if !clierr.Is(err, clierr.CodeProvider) {
		t.Fatalf("expected provider error for missing position, got %v", err)
	}
}
