package intent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
)

// Kind identifies one action variant.
type Kind string

const (
	KindTransfer         Kind = "transfer"
	KindYieldDeposit     Kind = "yield_deposit"
	KindYieldWithdraw    Kind = "yield_withdraw"
	KindYieldReinvest    Kind = "yield_reinvest"
	KindPositionOpen     Kind = "position_open"
	KindPositionLeverage Kind = "position_leverage"
	KindPositionClose    Kind = "position_close"
)

// ParseKind normalizes user input such as "Yield-Deposit" into a Kind.
func ParseKind(v string) Kind {
	norm := strings.ToLower(strings.TrimSpace(v))
	return Kind(strings.ReplaceAll(norm, "-", "_"))
}

// Intent is a parsed user request. It is treated as immutable: New copies the
// parameter map and accessors never hand out the underlying map.
type Intent struct {
	Kind   Kind           `json:"kind"`
	Params map[string]any `json:"params"`
}

func New(kind Kind, params map[string]any) Intent {
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return Intent{Kind: kind, Params: copied}
}

func (i Intent) Has(name string) bool {
	v, ok := i.Params[name]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns a required string parameter.
func (i Intent) String(name string) (string, error) {
	if !i.Has(name) {
		return "", clierr.InvalidField(name, "is required")
	}
	s, ok := i.Params[name].(string)
	if !ok {
		return "", clierr.InvalidField(name, "must be a string, got %T", i.Params[name])
	}
	return strings.TrimSpace(s), nil
}

// Decimal returns a required numeric parameter as its exact decimal text.
// Floats are accepted for convenience and formatted with the shortest
// representation that round-trips.
func (i Intent) Decimal(name string) (string, error) {
	if !i.Has(name) {
		return "", clierr.InvalidField(name, "is required")
	}
	switch v := i.Params[name].(type) {
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", clierr.InvalidField(name, "must be a number, got %T", v)
	}
}

// Keys lists the parameter names in sorted order.
func (i Intent) Keys() []string {
	keys := make([]string, 0, len(i.Params))
	for k := range i.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (i Intent) Describe() string {
	parts := make([]string, 0, len(i.Params))
	for _, k := range i.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, i.Params[k]))
	}
	return fmt.Sprintf("%s(%s)", i.Kind, strings.Join(parts, ", "))
}
