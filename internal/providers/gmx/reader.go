// Package gmx reads position previews from the perpetuals reader contract.
package gmx

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/model"
	"github.com/ggonzalez94/defi-intents/internal/providers"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

var readerABI = providers.MustABI(registry.PerpsReaderABI)

type Reader struct {
	contract providers.Contract
}

func NewReader(caller ethereum.ContractCaller, address string) *Reader {
	if address == "" {
		address = registry.PerpsReader
	}
	return &Reader{contract: providers.Contract{Caller: caller, ABI: readerABI, Address: common.HexToAddress(address)}}
}

func (r *Reader) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "gmx",
		Family:       "perps",
		Capabilities: []string{"perps.open", "perps.leverage", "perps.close"},
	}
}

func (r *Reader) PreviewOpen(ctx context.Context, req providers.PerpsOpenRequest) (model.PerpsOpenPreview, error) {
	values, err := r.contract.Call(ctx, "previewOpenPosition",
		common.HexToAddress(req.Market.IndexToken), req.SizeUSD, req.Collateral, req.IsLong)
	if err != nil {
		return model.PerpsOpenPreview{}, err
	}
	nums, err := bigs("previewOpenPosition", values, 3)
	if err != nil {
		return model.PerpsOpenPreview{}, err
	}
	return model.PerpsOpenPreview{
		EntryPrice:       nums[0].String(),
		LiquidationPrice: nums[1].String(),
		FeeUSD:           nums[2].String(),
	}, nil
}

// Position loads an open position. A zero size means no such position.
func (r *Reader) Position(ctx context.Context, key common.Hash) (model.PerpsPosition, error) {
	values, err := r.contract.Call(ctx, "getPosition", key)
	if err != nil {
		return model.PerpsPosition{}, err
	}
	if len(values) != 4 {
		return model.PerpsPosition{}, clierr.New(clierr.CodeUnavailable, "getPosition returned unexpected values")
	}
	index, ok := values[0].(common.Address)
	if !ok {
		return model.PerpsPosition{}, clierr.New(clierr.CodeUnavailable, "getPosition returned invalid index token")
	}
	size, err := providers.BigOutput("getPosition", values[1])
	if err != nil {
		return model.PerpsPosition{}, err
	}
	collateral, err := providers.BigOutput("getPosition", values[2])
	if err != nil {
		return model.PerpsPosition{}, err
	}
	isLong, _ := values[3].(bool)
	if size.Sign() == 0 {
		return model.PerpsPosition{}, clierr.New(clierr.CodeProvider, fmt.Sprintf("no open position with id %s", key.Hex()))
	}
	return model.PerpsPosition{
		Key:        key.Hex(),
		IndexToken: index.Hex(),
		SizeUSD:    size.String(),
		Collateral: collateral.String(),
		IsLong:     isLong,
	}, nil
}

func (r *Reader) PreviewLeverage(ctx context.Context, key common.Hash, leverageBps *big.Int) (model.PerpsLeveragePreview, error) {
	pos, size, collateral, err := r.load(ctx, key)
	if err != nil {
		return model.PerpsLeveragePreview{}, err
	}
	values, err := r.contract.Call(ctx, "previewPositionLeverageAdjustment",
		common.HexToAddress(pos.IndexToken), size, collateral, leverageBps)
	if err != nil {
		return model.PerpsLeveragePreview{}, err
	}
	nums, err := bigs("previewPositionLeverageAdjustment", values, 3)
	if err != nil {
		return model.PerpsLeveragePreview{}, err
	}
	return model.PerpsLeveragePreview{
		Position:         pos,
		CollateralDelta:  nums[0].String(),
		FeeUSD:           nums[1].String(),
		LiquidationPrice: nums[2].String(),
	}, nil
}

func (r *Reader) PreviewClose(ctx context.Context, key common.Hash) (model.PerpsClosePreview, error) {
	pos, size, collateral, err := r.load(ctx, key)
	if err != nil {
		return model.PerpsClosePreview{}, err
	}
	values, err := r.contract.Call(ctx, "previewPositionClose",
		common.HexToAddress(pos.IndexToken), size, collateral, pos.IsLong)
	if err != nil {
		return model.PerpsClosePreview{}, err
	}
	nums, err := bigs("previewPositionClose", values, 3)
	if err != nil {
		return model.PerpsClosePreview{}, err
	}
	return model.PerpsClosePreview{
		Position:     pos,
		ReturnUSD:    nums[0].String(),
		FeeUSD:       nums[1].String(),
		MarketImpact: nums[2].String(),
	}, nil
}

func (r *Reader) load(ctx context.Context, key common.Hash) (model.PerpsPosition, *big.Int, *big.Int, error) {
	pos, err := r.Position(ctx, key)
	if err != nil {
		return model.PerpsPosition{}, nil, nil, err
	}
	size, _ := new(big.Int).SetString(pos.SizeUSD, 10)
	collateral, _ := new(big.Int).SetString(pos.Collateral, 10)
	return pos, size, collateral, nil
}

func bigs(method string, values []any, n int) ([]*big.Int, error) {
	if len(values) != n {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s returned %d values, expected %d", method, len(values), n))
	}
	out := make([]*big.Int, n)
	for i, v := range values {
		b, err := providers.BigOutput(method, v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
