package id

import "testing"

func TestParseChainVariants(t *testing.T) {
	chain, err := ParseChain("avax")
	if err != nil {
		t.Fatalf("ParseChain(avax) failed: %v", err)
	}
	if chain.CAIP2 != "eip155:43114" || chain.NativeToken != "AVAX" {
		t.Fatalf("unexpected chain: %+v", chain)
	}

	chain, err = ParseChain("534352")
	if err != nil {
		t.Fatalf("ParseChain(534352) failed: %v", err)
	}
	if chain.Slug != "scroll" {
		t.Fatalf("unexpected slug: %s", chain.Slug)
	}

	chain, err = ParseChain("eip155:59144")
	if err != nil {
		t.Fatalf("ParseChain(eip155:59144) failed: %v", err)
	}
	if chain.Slug != "linea" {
		t.Fatalf("unexpected slug: %s", chain.Slug)
	}

	if _, err := ParseChain("eip155:999999"); err == nil {
		t.Fatal("expected unknown chain id to be rejected")
	}
	if len(Chains()) != 10 {
		t.Fatalf("expected 10 known chains, got %d", len(Chains()))
	}
}

func TestParseTokenSymbolAddressAndNative(t *testing.T) {
	chain, _ := ParseChain("ethereum")

	token, err := ParseToken("usdc", chain)
	if err != nil {
		t.Fatalf("ParseToken(usdc) failed: %v", err)
	}
	if token.Symbol != "USDC" || token.Decimals != 6 {
		t.Fatalf("unexpected token: %+v", token)
	}

	byAddr, err := ParseToken("0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48", chain)
	if err != nil {
		t.Fatalf("ParseToken(address) failed: %v", err)
	}
	if byAddr.Symbol != "USDC" {
		t.Fatalf("expected USDC, got %s", byAddr.Symbol)
	}

	native, err := ParseToken("ETH", chain)
	if err != nil {
		t.Fatalf("ParseToken(ETH) failed: %v", err)
	}
	if !native.IsNative() || native.Decimals != 18 {
		t.Fatalf("unexpected native token: %+v", native)
	}
}

func TestParseTokenUnknownSymbol(t *testing.T) {
	chain, _ := ParseChain("linea")
	if _, err := ParseToken("DAI", chain); err == nil {
		t.Fatal("expected unknown symbol error")
	}
}
