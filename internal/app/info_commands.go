package app

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/defi-intents/internal/actions"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/id"
	"github.com/ggonzalez94/defi-intents/internal/model"
	"github.com/ggonzalez94/defi-intents/internal/policy"
	"github.com/ggonzalez94/defi-intents/internal/providers/avayield"
	"github.com/ggonzalez94/defi-intents/internal/registry"
	"github.com/spf13/cobra"
)

type kindInfo struct {
	actions.Entry
	Allowed bool `json:"allowed"`
}

type chainInfo struct {
	id.Chain
	RPCURL string `json:"rpc_url,omitempty"`
}

func (s *runtimeState) kindsRegistry() *actions.Registry {
	if s.pipe != nil {
		return s.pipe.registry
	}
	return actions.Default()
}

func (s *runtimeState) newKindsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kinds",
		Short: "List action kinds, their parameters and whether policy allows them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol := policy.Policy{AllowedKinds: s.settings.AllowedKinds}
			entries := s.kindsRegistry().Entries()
			items := make([]kindInfo, 0, len(entries))
			for _, e := range entries {
				items = append(items, kindInfo{Entry: e, Allowed: pol.CheckKind(string(e.Kind)) == nil})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	return cmd
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "List supported chains and the RPC endpoint each resolves to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chains := id.Chains()
			items := make([]chainInfo, 0, len(chains))
			for _, c := range chains {
				// Unresolved endpoints are left blank; only execution needs them.
				url, _ := registry.ResolveRPCURL(s.settings.RPCOverrides, c.EVMChainID)
				items = append(items, chainInfo{Chain: c, RPCURL: url})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	return cmd
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their API key metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			items := make([]model.ProviderInfo, 0, 3)
			for _, prov := range p.providerInfos() {
				items = append(items, prov.Info())
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	return cmd
}

func (s *runtimeState) newVaultCommand() *cobra.Command {
	root := &cobra.Command{Use: "vault", Short: "Yield vault commands"}
	var owner string
	state := &cobra.Command{
		Use:   "state",
		Short: "Show vault rewards, leverage and the user's shares",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			addr, err := s.ownerAddress(cmd, p, owner)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()
			snapshot, err := avayield.Snapshot(ctx, p.vault, addr)
			if err != nil {
				return clierr.Wrap(clierr.CodeProvider, "read vault state", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), snapshot, nil)
		},
	}
	state.Flags().StringVar(&owner, "owner", "", "Address to read shares for (defaults to the user's wallet)")
	root.AddCommand(state)
	return root
}

func (s *runtimeState) ownerAddress(cmd *cobra.Command, p *pipeline, owner string) (common.Address, error) {
	if strings.TrimSpace(owner) == "" {
		return p.wallets.Address(cmd.Context(), s.settings.UserID)
	}
	if !common.IsHexAddress(owner) {
		return common.Address{}, clierr.New(clierr.CodeUsage, "--owner must be an EVM address")
	}
	return common.HexToAddress(owner), nil
}

func (s *runtimeState) newBridgeCommand() *cobra.Command {
	root := &cobra.Command{Use: "bridge", Short: "Bridge commands"}
	var txHash, fromArg, toArg string
	status := &cobra.Command{
		Use:   "status",
		Short: "Track a bridge transfer by its source transaction hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(strings.TrimPrefix(strings.TrimSpace(txHash), "0x")) != 64 {
				return clierr.New(clierr.CodeUsage, "--tx-hash must be a 32-byte hex hash")
			}
			from, err := id.ParseChain(fromArg)
			if err != nil {
				return err
			}
			to, err := id.ParseChain(toArg)
			if err != nil {
				return err
			}
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()
			st, err := p.bridge.BridgeStatus(ctx, strings.TrimSpace(txHash), from.EVMChainID, to.EVMChainID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), st, nil)
		},
	}
	status.Flags().StringVar(&txHash, "tx-hash", "", "Source chain transaction hash")
	status.Flags().StringVar(&fromArg, "from", "", "Source chain")
	status.Flags().StringVar(&toArg, "to", "", "Destination chain")
	_ = status.MarkFlagRequired("tx-hash")
	_ = status.MarkFlagRequired("from")
	_ = status.MarkFlagRequired("to")
	root.AddCommand(status)
	return root
}
