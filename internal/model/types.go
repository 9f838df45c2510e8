package model

import (
	"encoding/json"
	"time"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	UserID    string    `json:"user_id,omitempty"`
}

type ProviderInfo struct {
	Name          string   `json:"name"`
	Family        string   `json:"family"`
	RequiresKey   bool     `json:"requires_key"`
	Capabilities  []string `json:"capabilities"`
	KeyEnvVarName string   `json:"key_env_var,omitempty"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

// BridgeQuote is the best route for a transfer. Route is the provider's
// opaque route object, echoed back when building the transaction.
type BridgeQuote struct {
	Provider        string          `json:"provider"`
	RouteID         string          `json:"route_id"`
	FromChainID     int64           `json:"from_chain_id"`
	ToChainID       int64           `json:"to_chain_id"`
	FromToken       string          `json:"from_token"`
	ToToken         string          `json:"to_token"`
	InputAmount     AmountInfo      `json:"input_amount"`
	EstimatedOut    AmountInfo      `json:"estimated_out"`
	EstimatedFeeUSD float64         `json:"estimated_fee_usd"`
	EstimatedTimeS  int64           `json:"estimated_time_s"`
	Bridges         []string        `json:"bridges"`
	Route           json.RawMessage `json:"-"`
	FetchedAt       string          `json:"fetched_at"`
}

// BridgeTx is the transaction the bridge aggregator wants signed.
type BridgeTx struct {
	ChainID  int64           `json:"chain_id"`
	Target   string          `json:"target"`
	Data     string          `json:"data"`
	Value    string          `json:"value"`
	Approval *BridgeApproval `json:"approval,omitempty"`
}

type BridgeApproval struct {
	Token         string `json:"token"`
	Spender       string `json:"spender"`
	Owner         string `json:"owner"`
	MinimumAmount string `json:"minimum_amount"`
}

type BridgeStatus struct {
	SourceTxHash      string `json:"source_tx_hash"`
	SourceStatus      string `json:"source_status"`
	DestinationTxHash string `json:"destination_tx_hash,omitempty"`
	DestinationStatus string `json:"destination_status"`
	FromChainID       int64  `json:"from_chain_id"`
	ToChainID         int64  `json:"to_chain_id"`
}

// VaultState is a snapshot of the strategy vault for one owner. All amounts
// are base units of the deposit token.
type VaultState struct {
	Address             string `json:"address"`
	ChainID             int64  `json:"chain_id"`
	Shares              string `json:"shares"`
	SharesValue         string `json:"shares_value"`
	PendingRewards      string `json:"pending_rewards"`
	MinTokensToReinvest string `json:"min_tokens_to_reinvest"`
	LeverageBps         string `json:"leverage_bps"`
	TotalDeposits       string `json:"total_deposits"`
}

// PerpsPosition is an open position. USD values carry 30 decimals.
type PerpsPosition struct {
	Key        string `json:"key"`
	IndexToken string `json:"index_token"`
	SizeUSD    string `json:"size_usd"`
	Collateral string `json:"collateral_usd"`
	IsLong     bool   `json:"is_long"`
}

type PerpsOpenPreview struct {
	EntryPrice       string `json:"entry_price"`
	LiquidationPrice string `json:"liquidation_price"`
	FeeUSD           string `json:"fee_usd"`
}

type PerpsLeveragePreview struct {
	Position         PerpsPosition `json:"position"`
	CollateralDelta  string        `json:"collateral_delta_usd"`
	FeeUSD           string        `json:"fee_usd"`
	LiquidationPrice string        `json:"liquidation_price"`
}

type PerpsClosePreview struct {
	Position     PerpsPosition `json:"position"`
	ReturnUSD    string        `json:"return_usd"`
	FeeUSD       string        `json:"fee_usd"`
	MarketImpact string        `json:"market_impact_usd"`
}
