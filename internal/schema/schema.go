// Package schema describes the CLI surface and the action kinds it accepts
// in a machine-readable form, so agents can discover both without parsing
// help text.
package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ggonzalez94/defi-intents/internal/actions"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Example     string          `json:"example,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
	Inherited bool   `json:"inherited,omitempty"`
}

// KindSchema is one action kind as a caller has to phrase it.
type KindSchema struct {
	Kind        string        `json:"kind"`
	Family      string        `json:"family"`
	Description string        `json:"description"`
	Params      []ParamSchema `json:"params"`
	// Approval is true when confirming may first send an ERC-20 approval.
	Approval bool `json:"approval"`
}

type ParamSchema struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Range string `json:"range,omitempty"`
}

// Build describes the command at commandPath (space separated, relative to
// root) and everything below it.
func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	for _, part := range strings.Fields(commandPath) {
		next := findChild(cmd, part)
		if next == nil {
			return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
		}
		cmd = next
	}
	return serialize(cmd), nil
}

func findChild(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name || slices.Contains(c.Aliases, name) {
			return c
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Example: cmd.Example,
		Flags:   collectFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

// collectFlags lists local flags first, then the global ones the command
// inherits, each group in declaration order.
func collectFlags(cmd *cobra.Command) []FlagSchema {
	items := []FlagSchema{}
	add := func(inherited bool) func(*pflag.Flag) {
		return func(f *pflag.Flag) {
			_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
			items = append(items, FlagSchema{
				Name:      f.Name,
				Shorthand: f.Shorthand,
				Type:      f.Value.Type(),
				Usage:     f.Usage,
				Default:   f.DefValue,
				Required:  required,
				Inherited: inherited,
			})
		}
	}
	cmd.LocalFlags().VisitAll(add(false))
	cmd.InheritedFlags().VisitAll(add(true))
	return items
}

// Kinds describes every kind in reg.
func Kinds(reg *actions.Registry) []KindSchema {
	entries := reg.Entries()
	out := make([]KindSchema, 0, len(entries))
	for _, e := range entries {
		k := KindSchema{
			Kind:        string(e.Kind),
			Family:      string(e.Family),
			Description: e.Describe,
			Params:      make([]ParamSchema, 0, len(e.Fields)),
			Approval:    e.NeedsAllowance,
		}
		for _, f := range e.Fields {
			p := ParamSchema{Name: f.Name, Type: string(f.Type)}
			if f.Range != nil {
				p.Range = f.Range.String()
			}
			k.Params = append(k.Params, p)
		}
		out = append(out, k)
	}
	return out
}
