package actions

import (
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/id"
	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

type FieldType string

const (
	FieldDecimal    FieldType = "decimal"
	FieldString     FieldType = "string"
	FieldChain      FieldType = "chain"
	FieldSide       FieldType = "side"
	FieldPair       FieldType = "pair"
	FieldPositionID FieldType = "position_id"
)

type Field struct {
	Name  string    `json:"name"`
	Type  FieldType `json:"type"`
	Range *Range    `json:"range,omitempty"`
}

var (
	decimalText    = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
	positionIDText = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)
)

func (f Field) Check(in intent.Intent) error {
	switch f.Type {
	case FieldDecimal:
		raw, err := in.Decimal(f.Name)
		if err != nil {
			return err
		}
		v, err := ParseDecimal(f.Name, raw)
		if err != nil {
			return err
		}
		if f.Range != nil && !f.Range.Contains(v) {
			return clierr.InvalidField(f.Name, "%s is outside the allowed range %s", raw, f.Range)
		}
		return nil
	case FieldChain:
		raw, err := in.String(f.Name)
		if err != nil {
			return err
		}
		if _, err := id.ParseChain(raw); err != nil {
			return clierr.InvalidField(f.Name, "unsupported chain %q", raw)
		}
		return nil
	case FieldSide:
		raw, err := in.String(f.Name)
		if err != nil {
			return err
		}
		if _, err := ParseSide(raw); err != nil {
			return err
		}
		return nil
	case FieldPair:
		raw, err := in.String(f.Name)
		if err != nil {
			return err
		}
		if _, ok := registry.PerpsMarketByPair(raw); !ok {
			return clierr.InvalidField(f.Name, "unsupported pair %q (expected one of %s)", raw, strings.Join(registry.PerpsPairs(), ", "))
		}
		return nil
	case FieldPositionID:
		raw, err := in.String(f.Name)
		if err != nil {
			return err
		}
		if !positionIDText.MatchString(raw) {
			return clierr.InvalidField(f.Name, "must be a 0x-prefixed position key")
		}
		return nil
	default:
		_, err := in.String(f.Name)
		return err
	}
}

// ParseDecimal parses exact decimal text into a rational.
func ParseDecimal(field, raw string) (*big.Rat, error) {
	clean := strings.TrimSpace(raw)
	if !decimalText.MatchString(clean) {
		return nil, clierr.InvalidField(field, "%q is not a decimal number", raw)
	}
	v, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, clierr.InvalidField(field, "%q is not a decimal number", raw)
	}
	return v, nil
}

// ParseSide maps long/short to isLong.
func ParseSide(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return true, nil
	case "short", "sell":
		return false, nil
	default:
		return false, clierr.InvalidField("side", "must be long or short, got %q", raw)
	}
}

// Range is an interval over decimals. An empty bound is unbounded.
type Range struct {
	Min          string `json:"min,omitempty"`
	Max          string `json:"max,omitempty"`
	MinExclusive bool   `json:"min_exclusive,omitempty"`
	MaxExclusive bool   `json:"max_exclusive,omitempty"`
}

func (r Range) Contains(v *big.Rat) bool {
	if r.Min != "" {
		lo, _ := new(big.Rat).SetString(r.Min)
		c := v.Cmp(lo)
		if c < 0 || (c == 0 && r.MinExclusive) {
			return false
		}
	}
	if r.Max != "" {
		hi, _ := new(big.Rat).SetString(r.Max)
		c := v.Cmp(hi)
		if c > 0 || (c == 0 && r.MaxExclusive) {
			return false
		}
	}
	return true
}

// String renders interval notation, e.g. [1.1, 50] or (0, 100]. A range with
// only an exclusive lower bound renders as "> 0".
func (r Range) String() string {
	switch {
	case r.Min != "" && r.Max == "":
		if r.MinExclusive {
			return "> " + r.Min
		}
		return ">= " + r.Min
	case r.Min == "" && r.Max != "":
		if r.MaxExclusive {
			return "< " + r.Max
		}
		return "<= " + r.Max
	}
	open, closing := "[", "]"
	if r.MinExclusive {
		open = "("
	}
	if r.MaxExclusive {
		closing = ")"
	}
	return open + r.Min + ", " + r.Max + closing
}
