package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
)

func TestCheckKindAllowed(t *testing.T) {
	if err := CheckKindAllowed(nil, "transfer"); err != nil {
		t.Fatalf("expected empty allowlist to allow all, got %v", err)
	}
	if err := CheckKindAllowed([]string{"Yield-Deposit"}, "yield_deposit"); err != nil {
		t.Fatalf("expected normalized match, got %v", err)
	}
	err := CheckKindAllowed([]string{"yield_deposit"}, "position_open")
	if !clierr.Is(err, clierr.CodeBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
}

func TestReinvestsBefore(t *testing.T) {
	p := Policy{ReinvestBefore: []string{"yield_withdraw"}}
	if !p.ReinvestsBefore("yield_withdraw") {
		t.Fatal("expected yield_withdraw to reinvest first")
	}
	if p.ReinvestsBefore("position_close") {
		t.Fatal("expected position_close to skip reinvest")
	}
}
