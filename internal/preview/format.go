package preview

import (
	"math/big"
	"strings"

	"github.com/ggonzalez94/defi-intents/internal/id"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

// formatBps renders basis points as a multiplier, e.g. 25000 -> 2.5.
func formatBps(bps *big.Int) string {
	return id.FormatBaseUnits(bps, 4)
}

// formatUSD renders a 30-decimal USD value with cents.
func formatUSD(raw string) string {
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return raw
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(registry.PerpsUSDDecimals), nil)
	return new(big.Rat).SetFrac(n, scale).FloatString(2)
}

func trimRat(r *big.Rat) string {
	s := r.FloatString(8)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
