package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Amount is a human decimal converted to integer base units.
type Amount struct {
	Input     string   `json:"input"`
	Decimal   string   `json:"decimal"`
	BaseUnits *big.Int `json:"base_units"`
	Decimals  int      `json:"decimals"`
	// Rounded is set when Input carried more fractional digits than Decimals.
	Rounded bool `json:"rounded"`
}

// ParseAmount converts a decimal string into base units for a token with the
// given precision. Digits beyond the precision are rounded half-up and the
// result is flagged as Rounded instead of being dropped silently.
func ParseAmount(decimal string, decimals int) (Amount, error) {
	if decimals < 0 {
		return Amount{}, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	raw := strings.TrimSpace(decimal)
	if !decimalPattern.MatchString(raw) {
		return Amount{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q must be in decimal form like 1.23", decimal))
	}
	base, rounded, err := decimalToBaseUnits(raw, decimals)
	if err != nil {
		return Amount{}, err
	}
	return Amount{
		Input:     raw,
		Decimal:   FormatBaseUnits(base, decimals),
		BaseUnits: base,
		Decimals:  decimals,
		Rounded:   rounded,
	}, nil
}

// RoundingNotice describes the adjustment made to an over-precise input.
func (a Amount) RoundingNotice() string {
	if !a.Rounded {
		return ""
	}
	return fmt.Sprintf("amount %s exceeds %d decimal places and was rounded to %s", a.Input, a.Decimals, a.Decimal)
}

func (a Amount) String() string {
	if a.BaseUnits == nil {
		return "0"
	}
	return a.BaseUnits.String()
}

// FormatBaseUnits renders base units as a trimmed decimal string.
func FormatBaseUnits(base *big.Int, decimals int) string {
	if base == nil {
		return "0"
	}
	return formatDecimal(base.String(), decimals)
}

func formatDecimal(baseUnits string, decimals int) string {
	n := new(big.Int)
	n.SetString(baseUnits, 10)
	if decimals == 0 {
		return n.String()
	}

	s := n.String()
	if len(s) <= decimals {
		pad := strings.Repeat("0", decimals-len(s)+1)
		s = pad + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := s[len(s)-decimals:]
	fracPart = strings.TrimRight(fracPart, "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

func decimalToBaseUnits(decimal string, decimals int) (*big.Int, bool, error) {
	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}

	roundUp := false
	rounded := false
	if len(fracPart) > decimals {
		dropped := fracPart[decimals:]
		rounded = strings.Trim(dropped, "0") != ""
		roundUp = dropped[0] >= '5'
		fracPart = fracPart[:decimals]
	}

	fracPart = fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		combined = "0"
	}
	out, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, false, clierr.New(clierr.CodeUsage, "invalid decimal amount")
	}
	if roundUp {
		out.Add(out, big.NewInt(1))
	}
	return out, rounded, nil
}
