package providers

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/defi-intents/internal/id"
	"github.com/ggonzalez94/defi-intents/internal/model"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

type Provider interface {
	Info() model.ProviderInfo
}

type BridgeQuoteRequest struct {
	FromChain   id.Chain
	ToChain     id.Chain
	FromToken   id.Token
	ToToken     id.Token
	Amount      id.Amount
	UserAddress string
}

// BridgeProvider prices and builds cross-chain transfers.
type BridgeProvider interface {
	Provider
	QuoteBridge(ctx context.Context, req BridgeQuoteRequest) (model.BridgeQuote, error)
	BuildBridgeTx(ctx context.Context, quote model.BridgeQuote, sender string) (model.BridgeTx, error)
	BridgeStatus(ctx context.Context, txHash string, fromChainID, toChainID int64) (model.BridgeStatus, error)
}

// VaultReader reads the strategy vault. Amounts are deposit-token base units.
type VaultReader interface {
	Provider
	ChainID() int64
	Address() common.Address
	PendingRewards(ctx context.Context) (*big.Int, error)
	MinTokensToReinvest(ctx context.Context) (*big.Int, error)
	SharesOf(ctx context.Context, owner common.Address) (*big.Int, error)
	DepositTokensForShares(ctx context.Context, shares *big.Int) (*big.Int, error)
	Leverage(ctx context.Context) (*big.Int, error)
	TotalDeposits(ctx context.Context) (*big.Int, error)
}

// PerpsOpenRequest carries USD values with 30 decimals.
type PerpsOpenRequest struct {
	Market     registry.PerpsMarket
	IsLong     bool
	SizeUSD    *big.Int
	Collateral *big.Int
}

// PerpsReader previews position changes without sending anything.
type PerpsReader interface {
	Provider
	PreviewOpen(ctx context.Context, req PerpsOpenRequest) (model.PerpsOpenPreview, error)
	Position(ctx context.Context, key common.Hash) (model.PerpsPosition, error)
	PreviewLeverage(ctx context.Context, key common.Hash, leverageBps *big.Int) (model.PerpsLeveragePreview, error)
	PreviewClose(ctx context.Context, key common.Hash) (model.PerpsClosePreview, error)
}
