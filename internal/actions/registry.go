// Package actions is the static table of supported action kinds. It holds
// metadata and field validation only; pricing lives with the providers.
package actions

import (
	"fmt"
	"sort"
	"sync"

	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/intent"
)

type Family string

const (
	FamilyBridge Family = "bridge"
	FamilyYield  Family = "yield"
	FamilyPerps  Family = "perps"
)

type Entry struct {
	Kind     intent.Kind `json:"kind"`
	Family   Family      `json:"family"`
	Describe string      `json:"description"`
	Fields   []Field     `json:"fields"`
	// NeedsAllowance marks kinds that move an ERC-20 through a spender, so
	// the plan may carry an approval requirement.
	NeedsAllowance bool `json:"needs_allowance"`
}

// Validate checks every required field of in, in declaration order, and
// reports the first failure naming the field.
func (e Entry) Validate(in intent.Intent) error {
	if in.Kind != e.Kind {
		return clierr.InvalidField("kind", "expected %s, got %s", e.Kind, in.Kind)
	}
	for _, f := range e.Fields {
		if err := f.Check(in); err != nil {
			return err
		}
	}
	return nil
}

type Registry struct {
	mu      sync.RWMutex
	entries map[intent.Kind]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[intent.Kind]Entry{}}
}

func (r *Registry) Register(e Entry) error {
	if e.Kind == "" {
		return fmt.Errorf("register action: missing kind")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.Kind]; exists {
		return fmt.Errorf("register action: kind %s already registered", e.Kind)
	}
	r.entries[e.Kind] = e
	return nil
}

func (r *Registry) Lookup(kind intent.Kind) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[kind]
	if !ok {
		return Entry{}, clierr.InvalidField("kind", "unsupported action %q", kind)
	}
	return e, nil
}

func (r *Registry) Kinds() []intent.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]intent.Kind, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Entries() []Entry {
	kinds := r.Kinds()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, r.entries[k])
	}
	return out
}

var (
	positive   = &Range{Min: "0", MinExclusive: true}
	percentage = &Range{Min: "0", MinExclusive: true, Max: "100"}
	leverage   = &Range{Min: "1.1", Max: "50"}
)

// LeverageRange bounds both requested and derived position leverage.
func LeverageRange() Range { return *leverage }

// Default returns the registry of every supported kind.
func Default() *Registry {
	r := NewRegistry()
	for _, e := range []Entry{
		{
			Kind:     intent.KindTransfer,
			Family:   FamilyBridge,
			Describe: "Bridge tokens between chains",
			Fields: []Field{
				{Name: "amount", Type: FieldDecimal, Range: positive},
				{Name: "from_chain", Type: FieldChain},
				{Name: "to_chain", Type: FieldChain},
				{Name: "from_token", Type: FieldString},
				{Name: "to_token", Type: FieldString},
			},
			NeedsAllowance: true,
		},
		{
			Kind:     intent.KindYieldDeposit,
			Family:   FamilyYield,
			Describe: "Deposit AVAX into the yield vault",
			Fields:   []Field{{Name: "amount", Type: FieldDecimal, Range: positive}},
		},
		{
			Kind:     intent.KindYieldWithdraw,
			Family:   FamilyYield,
			Describe: "Withdraw a percentage of vault shares",
			Fields:   []Field{{Name: "percentage", Type: FieldDecimal, Range: percentage}},
		},
		{
			Kind:     intent.KindYieldReinvest,
			Family:   FamilyYield,
			Describe: "Compound pending vault rewards",
		},
		{
			Kind:     intent.KindPositionOpen,
			Family:   FamilyPerps,
			Describe: "Open a leveraged perpetual position",
			Fields: []Field{
				{Name: "pair", Type: FieldPair},
				{Name: "side", Type: FieldSide},
				{Name: "size_usd", Type: FieldDecimal, Range: positive},
				{Name: "collateral_usd", Type: FieldDecimal, Range: positive},
			},
			NeedsAllowance: true,
		},
		{
			Kind:     intent.KindPositionLeverage,
			Family:   FamilyPerps,
			Describe: "Change the leverage of an open position",
			Fields: []Field{
				{Name: "position_id", Type: FieldPositionID},
				{Name: "leverage", Type: FieldDecimal, Range: leverage},
			},
		},
		{
			Kind:     intent.KindPositionClose,
			Family:   FamilyPerps,
			Describe: "Close an open position",
			Fields:   []Field{{Name: "position_id", Type: FieldPositionID}},
		},
	} {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}
