package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestPerpsMarketByPair(t *testing.T) {
	for _, pair := range PerpsPairs() {
		m, ok := PerpsMarketByPair(strings.ToLower(pair))
		if !ok {
			t.Fatalf("expected market for %s", pair)
		}
		if !common.IsHexAddress(m.IndexToken) {
			t.Fatalf("invalid index token for %s: %s", pair, m.IndexToken)
		}
	}
	if _, ok := PerpsMarketByPair("DOGE-USD"); ok {
		t.Fatal("did not expect DOGE-USD market")
	}
}

func TestResolveRPCURL(t *testing.T) {
	got, err := ResolveRPCURL(map[int64]string{43114: " http://127.0.0.1:9650 "}, 43114)
	if err != nil || got != "http://127.0.0.1:9650" {
		t.Fatalf("expected override, got %q err=%v", got, err)
	}
	got, err = ResolveRPCURL(nil, 534352)
	if err != nil || got != "https://rpc.scroll.io" {
		t.Fatalf("expected default scroll rpc, got %q err=%v", got, err)
	}
	if _, err := ResolveRPCURL(nil, 999999); err == nil {
		t.Fatal("expected missing rpc error")
	}
}

func TestExecutionABIConstantsParse(t *testing.T) {
	abis := []string{
		ERC20MinimalABI,
		AvaYieldStrategyABI,
		PerpsReaderABI,
		PerpsPositionRouterABI,
	}
	for _, raw := range abis {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse abi json: %v", err)
		}
	}
}
