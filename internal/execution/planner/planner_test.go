package planner

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

func TestVaultDepositCallCarriesValue(t *testing.T) {
	call, err := VaultDepositCall(registry.AvaYieldStrategy, big.NewInt(2_000_000_000_000_000_000))
	if err != nil {
		t.Fatalf("VaultDepositCall failed: %v", err)
	}
	if call.Value != "2000000000000000000" {
		t.Fatalf("unexpected value: %s", call.Value)
	}
	selector := "0x" + common.Bytes2Hex(plannerVaultABI.Methods["deposit"].ID)
	if call.Data != selector {
		t.Fatalf("expected bare deposit selector %s, got %s", selector, call.Data)
	}
	if !strings.EqualFold(call.Target, registry.AvaYieldStrategy) {
		t.Fatalf("unexpected target: %s", call.Target)
	}
}

func TestVaultWithdrawCallEncodesShares(t *testing.T) {
	call, err := VaultWithdrawCall(registry.AvaYieldStrategy, big.NewInt(12345))
	if err != nil {
		t.Fatalf("VaultWithdrawCall failed: %v", err)
	}
	args, err := plannerVaultABI.Methods["withdraw"].Inputs.Unpack(common.FromHex(call.Data)[4:])
	if err != nil {
		t.Fatalf("unpack withdraw args: %v", err)
	}
	if args[0].(*big.Int).Int64() != 12345 {
		t.Fatalf("unexpected shares: %v", args[0])
	}
	if call.Value != "0" {
		t.Fatalf("withdraw must not send value, got %s", call.Value)
	}
	if _, err := VaultWithdrawCall(registry.AvaYieldStrategy, big.NewInt(0)); err == nil {
		t.Fatal("expected zero shares to be rejected")
	}
}

func TestOpenPositionCall(t *testing.T) {
	market, _ := registry.PerpsMarketByPair("ETH-USD")
	size := new(big.Int).Mul(big.NewInt(500), new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil))
	call, err := OpenPositionCall(OpenPositionRequest{
		Router:     registry.PerpsPositionRouter,
		IndexToken: market.IndexToken,
		IsLong:     true,
		SizeUSD:    size,
		Collateral: big.NewInt(100_000_000),
	})
	if err != nil {
		t.Fatalf("OpenPositionCall failed: %v", err)
	}
	args, err := plannerPerpsRouterABI.Methods["openPosition"].Inputs.Unpack(common.FromHex(call.Data)[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(common.Address) != common.HexToAddress(market.IndexToken) || args[1].(bool) != true {
		t.Fatalf("unexpected args: %v", args)
	}
	if args[2].(*big.Int).Cmp(size) != 0 {
		t.Fatalf("unexpected size: %v", args[2])
	}
}

func TestPositionKeyCalls(t *testing.T) {
	key := common.HexToHash("0x01")
	adjust, err := AdjustLeverageCall(registry.PerpsPositionRouter, key, big.NewInt(50_000))
	if err != nil {
		t.Fatalf("AdjustLeverageCall failed: %v", err)
	}
	closeCall, err := ClosePositionCall(registry.PerpsPositionRouter, key)
	if err != nil {
		t.Fatalf("ClosePositionCall failed: %v", err)
	}
	if adjust.Label != "perps.adjust_leverage" || closeCall.Label != "perps.close" {
		t.Fatalf("unexpected labels: %s %s", adjust.Label, closeCall.Label)
	}
	if _, err := ClosePositionCall("not-an-address", key); err == nil {
		t.Fatal("expected invalid router error")
	}
}
