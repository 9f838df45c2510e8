package app

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ggonzalez94/defi-intents/internal/actions"
	"github.com/ggonzalez94/defi-intents/internal/config"
	"github.com/ggonzalez94/defi-intents/internal/confirm"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution"
	"github.com/ggonzalez94/defi-intents/internal/execution/signer"
	"github.com/ggonzalez94/defi-intents/internal/httpx"
	"github.com/ggonzalez94/defi-intents/internal/log"
	"github.com/ggonzalez94/defi-intents/internal/pending"
	"github.com/ggonzalez94/defi-intents/internal/policy"
	"github.com/ggonzalez94/defi-intents/internal/preview"
	"github.com/ggonzalez94/defi-intents/internal/providers"
	"github.com/ggonzalez94/defi-intents/internal/providers/avayield"
	"github.com/ggonzalez94/defi-intents/internal/providers/bungee"
	"github.com/ggonzalez94/defi-intents/internal/providers/gmx"
	"github.com/ggonzalez94/defi-intents/internal/registry"
	"github.com/ggonzalez94/defi-intents/internal/version"
	"github.com/ggonzalez94/defi-intents/internal/wallet"
)

// pipeline is everything a command needs, built once per invocation from
// the loaded settings.
type pipeline struct {
	registry *actions.Registry
	bridge   *bungee.Client
	vault    *avayield.Reader
	perps    *gmx.Reader
	wallets  wallet.Wallets
	keystore *wallet.KeystoreWallets
	store    pending.Store
	journal  *execution.Store
	service  *confirm.Service

	closers []func()
}

func (p *pipeline) providerInfos() []providers.Provider {
	return []providers.Provider{p.bridge, p.vault, p.perps}
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}

func buildPipeline(ctx context.Context, settings config.Settings) (*pipeline, error) {
	p := &pipeline{registry: actions.Default()}
	ok := false
	defer func() {
		if !ok {
			p.Close()
		}
	}()

	httpClient := httpx.New(settings.Timeout, settings.Retries,
		httpx.WithLogger(log.WithComponent("httpx")),
		httpx.WithUserAgent(version.UserAgent()),
	)
	p.bridge = bungee.New(httpClient, settings.BungeeAPIKey)
	if settings.BungeeBaseURL != "" {
		p.bridge = p.bridge.WithBaseURL(settings.BungeeBaseURL)
	}

	// Vault and perps contracts live on Avalanche. ethclient dials HTTP
	// endpoints lazily, so this does not touch the network.
	rpcURL, err := registry.ResolveRPCURL(settings.RPCOverrides, registry.AvalancheChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve avalanche rpc", err)
	}
	avax, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect avalanche rpc", err)
	}
	p.closers = append(p.closers, avax.Close)
	p.vault = avayield.NewReader(avax, settings.VaultAddress)
	p.perps = gmx.NewReader(avax, settings.PerpsReaderAddress)

	switch settings.WalletMode {
	case "env":
		p.wallets = wallet.StaticWallets{Load: func() (signer.Signer, error) {
			return signer.NewLocalSignerFromEnv()
		}}
	default:
		p.keystore = wallet.NewKeystoreWallets(settings.KeystoreDir, settings.KeystorePassphrase)
		p.wallets = p.keystore
	}

	store, err := pending.Open(ctx, pending.Options{
		Backend:       pending.Backend(settings.PendingBackend),
		MaxAge:        settings.PendingMaxAge,
		Path:          settings.PendingPath,
		LockPath:      settings.PendingLockPath,
		RedisAddr:     settings.RedisAddr,
		RedisPassword: settings.RedisPassword,
		RedisDB:       settings.RedisDB,
		RedisPrefix:   settings.RedisPrefix,
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open pending store", err)
	}
	p.store = store
	p.closers = append(p.closers, func() { _ = store.Close() })

	journal, err := execution.OpenStore(settings.JournalPath, settings.JournalLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open execution journal", err)
	}
	p.journal = journal
	p.closers = append(p.closers, func() { _ = journal.Close() })

	builder, err := preview.NewBuilder(preview.Deps{
		Registry: p.registry,
		Bridge:   p.bridge,
		Vault:    p.vault,
		Perps:    p.perps,
		Policy: policy.Policy{
			AllowedKinds:   settings.AllowedKinds,
			ReinvestBefore: settings.ReinvestBefore,
		},
		PositionRouter: settings.PerpsPositionRouter,
		Logger:         log.Base(),
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build preview builder", err)
	}

	orchestrator := execution.NewOrchestrator(execution.RPCDialer(settings.RPCOverrides), executeOptions(settings), log.Base())
	service, err := confirm.NewService(confirm.Deps{
		Wallets:  p.wallets,
		Builder:  builder,
		Pending:  p.store,
		Executor: orchestrator,
		Journal:  p.journal,
		Logger:   log.Base(),
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build confirmation service", err)
	}
	p.service = service
	ok = true
	return p, nil
}

func executeOptions(settings config.Settings) execution.ExecuteOptions {
	opts := execution.DefaultExecuteOptions()
	opts.Simulate = settings.Simulate
	opts.GasMultiplier = settings.GasMultiplier
	opts.MaxFeeGwei = settings.MaxFeeGwei
	opts.MaxPriorityFeeGwei = settings.MaxPriorityFeeGwei
	opts.WaitApproval = settings.WaitApproval
	opts.ApprovalTimeout = settings.ApprovalTimeout
	opts.WaitReceipt = settings.WaitReceipt
	opts.ReceiptTimeout = settings.ReceiptTimeout
	opts.AllowMaxApproval = settings.AllowMaxApproval
	return opts
}

// withTimeout bounds read-only commands. Confirm is not bounded here because
// the orchestrator applies its own approval and receipt timeouts.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

var errNoKeystore = errors.New("wallet commands need wallet mode keystore")
