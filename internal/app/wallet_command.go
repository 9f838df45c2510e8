package app

import (
	"bufio"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/spf13/cobra"
)

type walletInfo struct {
	UserID  string `json:"user_id"`
	Address string `json:"address"`
	Mode    string `json:"mode"`
}

func (s *runtimeState) newWalletCommand() *cobra.Command {
	root := &cobra.Command{Use: "wallet", Short: "Manage the user's wallet"}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a new keystore wallet for the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			if p.keystore == nil {
				return clierr.Wrap(clierr.CodeUsage, "create wallet", errNoKeystore)
			}
			addr, err := p.keystore.Create(cmd.Context(), s.settings.UserID)
			if err != nil {
				return err
			}
			return s.emitWallet(cmd, addr)
		},
	}

	imp := &cobra.Command{
		Use:   "import",
		Short: "Import a hex private key read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			if p.keystore == nil {
				return clierr.Wrap(clierr.CodeUsage, "import wallet", errNoKeystore)
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			key := strings.TrimSpace(line)
			if key == "" {
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "read private key from stdin", err)
				}
				return clierr.New(clierr.CodeUsage, "no private key on stdin")
			}
			addr, err := p.keystore.Import(cmd.Context(), s.settings.UserID, key)
			if err != nil {
				return err
			}
			return s.emitWallet(cmd, addr)
		},
	}

	address := &cobra.Command{
		Use:   "address",
		Short: "Print the user's wallet address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			addr, err := p.wallets.Address(cmd.Context(), s.settings.UserID)
			if err != nil {
				return err
			}
			return s.emitWallet(cmd, addr)
		},
	}

	root.AddCommand(create, imp, address)
	return root
}

func (s *runtimeState) emitWallet(cmd *cobra.Command, addr common.Address) error {
	info := walletInfo{UserID: s.settings.UserID, Address: addr.Hex(), Mode: s.settings.WalletMode}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), info, nil)
}
