// Package bungee talks to the Bungee (Socket) v2 aggregator API.
package bungee

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/httpx"
	"github.com/ggonzalez94/defi-intents/internal/id"
	"github.com/ggonzalez94/defi-intents/internal/model"
	"github.com/ggonzalez94/defi-intents/internal/providers"
	"github.com/ggonzalez94/defi-intents/internal/registry"
)

const apiKeyHeader = "API-KEY"

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: registry.BungeeBaseURL,
		apiKey:  apiKey,
		now:     time.Now,
	}
}

// WithBaseURL points the client at another deployment; an empty value keeps
// the default.
func (c *Client) WithBaseURL(base string) *Client {
	if v := strings.TrimRight(strings.TrimSpace(base), "/"); v != "" {
		c.baseURL = v
	}
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "bungee",
		Family:        "bridge",
		RequiresKey:   true,
		Capabilities:  []string{"bridge.quote", "bridge.build_tx", "bridge.status"},
		KeyEnvVarName: "DEFI_BUNGEE_API_KEY",
	}
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Result  T    `json:"result"`
	Message any  `json:"message"`
}

type quoteResult struct {
	Routes []json.RawMessage `json:"routes"`
}

type route struct {
	RouteID           string   `json:"routeId"`
	ToAmount          string   `json:"toAmount"`
	UsedBridgeNames   []string `json:"usedBridgeNames"`
	TotalGasFeesInUsd float64  `json:"totalGasFeesInUsd"`
	ServiceTime       int64    `json:"serviceTime"`
}

func (c *Client) QuoteBridge(ctx context.Context, req providers.BridgeQuoteRequest) (model.BridgeQuote, error) {
	if req.Amount.BaseUnits == nil || req.Amount.BaseUnits.Sign() <= 0 {
		return model.BridgeQuote{}, clierr.New(clierr.CodeUsage, "bungee quote requires a positive amount")
	}
	vals := url.Values{}
	vals.Set("fromChainId", strconv.FormatInt(req.FromChain.EVMChainID, 10))
	vals.Set("fromTokenAddress", req.FromToken.Address)
	vals.Set("toChainId", strconv.FormatInt(req.ToChain.EVMChainID, 10))
	vals.Set("toTokenAddress", req.ToToken.Address)
	vals.Set("fromAmount", req.Amount.BaseUnits.String())
	vals.Set("userAddress", req.UserAddress)
	vals.Set("uniqueRoutesPerBridge", "true")
	vals.Set("sort", "output")
	vals.Set("singleTxOnly", "true")

	var resp envelope[quoteResult]
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, c.baseURL+"/quote?"+vals.Encode(), nil, c.headers(), &resp); err != nil {
		return model.BridgeQuote{}, err
	}
	if !resp.Success {
		return model.BridgeQuote{}, clierr.New(clierr.CodeProvider, bungeeError(resp.Message, "bungee quote failed"))
	}
	raw, best, err := bestRoute(resp.Result.Routes)
	if err != nil {
		return model.BridgeQuote{}, err
	}

	bridges := append([]string(nil), best.UsedBridgeNames...)
	sort.Strings(bridges)
	out, _ := parseBaseUnits(best.ToAmount)
	return model.BridgeQuote{
		Provider:    "bungee",
		RouteID:     best.RouteID,
		FromChainID: req.FromChain.EVMChainID,
		ToChainID:   req.ToChain.EVMChainID,
		FromToken:   req.FromToken.Address,
		ToToken:     req.ToToken.Address,
		InputAmount: model.AmountInfo{
			AmountBaseUnits: req.Amount.BaseUnits.String(),
			AmountDecimal:   req.Amount.Decimal,
			Decimals:        req.FromToken.Decimals,
		},
		EstimatedOut: model.AmountInfo{
			AmountBaseUnits: out.String(),
			AmountDecimal:   id.FormatBaseUnits(out, req.ToToken.Decimals),
			Decimals:        req.ToToken.Decimals,
		},
		EstimatedFeeUSD: best.TotalGasFeesInUsd,
		EstimatedTimeS:  best.ServiceTime,
		Bridges:         bridges,
		Route:           raw,
		FetchedAt:       c.now().UTC().Format(time.RFC3339),
	}, nil
}

// bestRoute picks the route with the largest output. The API already sorts
// by output; the scan guards against an unsorted response.
func bestRoute(routes []json.RawMessage) (json.RawMessage, route, error) {
	var (
		bestRaw json.RawMessage
		best    route
		found   bool
	)
	for _, raw := range routes {
		var r route
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		amount, ok := parseBaseUnits(r.ToAmount)
		if !ok {
			continue
		}
		if !found {
			bestRaw, best, found = raw, r, true
			continue
		}
		current, _ := parseBaseUnits(best.ToAmount)
		if amount.Cmp(current) > 0 {
			bestRaw, best = raw, r
		}
	}
	if !found {
		return nil, route{}, clierr.New(clierr.CodeProvider, "no bridge route available for this transfer")
	}
	return bestRaw, best, nil
}

type buildTxResult struct {
	TxTarget     string `json:"txTarget"`
	TxData       string `json:"txData"`
	Value        string `json:"value"`
	ChainID      int64  `json:"chainId"`
	ApprovalData *struct {
		MinimumApprovalAmount string `json:"minimumApprovalAmount"`
		ApprovalTokenAddress  string `json:"approvalTokenAddress"`
		AllowanceTarget       string `json:"allowanceTarget"`
		Owner                 string `json:"owner"`
	} `json:"approvalData"`
}

func (c *Client) BuildBridgeTx(ctx context.Context, quote model.BridgeQuote, sender string) (model.BridgeTx, error) {
	if len(quote.Route) == 0 {
		return model.BridgeTx{}, clierr.New(clierr.CodeUsage, "bungee build requires a quoted route")
	}
	body, err := json.Marshal(map[string]any{
		"route":         quote.Route,
		"senderAddress": sender,
	})
	if err != nil {
		return model.BridgeTx{}, clierr.Wrap(clierr.CodeInternal, "marshal bungee build request", err)
	}
	var resp envelope[buildTxResult]
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/build-tx", body, c.headers(), &resp); err != nil {
		return model.BridgeTx{}, err
	}
	if !resp.Success {
		return model.BridgeTx{}, clierr.New(clierr.CodeProvider, bungeeError(resp.Message, "bungee build-tx failed"))
	}
	res := resp.Result
	if strings.TrimSpace(res.TxTarget) == "" || strings.TrimSpace(res.TxData) == "" {
		return model.BridgeTx{}, clierr.New(clierr.CodeProvider, "bungee build-tx returned no transaction")
	}
	value, err := normalizeValue(res.Value)
	if err != nil {
		return model.BridgeTx{}, clierr.Wrap(clierr.CodeProvider, "bungee build-tx value", err)
	}
	chainID := res.ChainID
	if chainID == 0 {
		chainID = quote.FromChainID
	}
	tx := model.BridgeTx{
		ChainID: chainID,
		Target:  res.TxTarget,
		Data:    res.TxData,
		Value:   value,
	}
	if a := res.ApprovalData; a != nil && strings.TrimSpace(a.AllowanceTarget) != "" {
		tx.Approval = &model.BridgeApproval{
			Token:         a.ApprovalTokenAddress,
			Spender:       a.AllowanceTarget,
			Owner:         a.Owner,
			MinimumAmount: a.MinimumApprovalAmount,
		}
	}
	return tx, nil
}

type statusResult struct {
	SourceTxStatus      string `json:"sourceTxStatus"`
	DestinationTxStatus string `json:"destinationTxStatus"`
	SourceTransaction   string `json:"sourceTransactionHash"`
	DestinationTx       string `json:"destinationTransactionHash"`
}

func (c *Client) BridgeStatus(ctx context.Context, txHash string, fromChainID, toChainID int64) (model.BridgeStatus, error) {
	vals := url.Values{}
	vals.Set("transactionHash", txHash)
	vals.Set("fromChainId", strconv.FormatInt(fromChainID, 10))
	vals.Set("toChainId", strconv.FormatInt(toChainID, 10))

	var resp envelope[statusResult]
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, c.baseURL+"/bridge-status?"+vals.Encode(), nil, c.headers(), &resp); err != nil {
		return model.BridgeStatus{}, err
	}
	if !resp.Success {
		return model.BridgeStatus{}, clierr.New(clierr.CodeProvider, bungeeError(resp.Message, "bungee bridge-status failed"))
	}
	source := resp.Result.SourceTransaction
	if source == "" {
		source = txHash
	}
	return model.BridgeStatus{
		SourceTxHash:      source,
		SourceStatus:      strings.ToLower(resp.Result.SourceTxStatus),
		DestinationTxHash: resp.Result.DestinationTx,
		DestinationStatus: strings.ToLower(resp.Result.DestinationTxStatus),
		FromChainID:       fromChainID,
		ToChainID:         toChainID,
	}, nil
}

func (c *Client) headers() map[string]string {
	h := map[string]string{}
	if key := strings.TrimSpace(c.apiKey); key != "" {
		h[apiKeyHeader] = key
	}
	return h
}

// normalizeValue converts the hex wei value returned by build-tx to decimal.
func normalizeValue(v string) (string, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return "0", nil
	}
	base := 10
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		clean, base = clean[2:], 16
		if strings.TrimLeft(clean, "0") == "" {
			return "0", nil
		}
	}
	n, ok := new(big.Int).SetString(clean, base)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("invalid value %q", v)
	}
	return n.String(), nil
}

func parseBaseUnits(v string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(v), 10)
	if !ok || n.Sign() < 0 {
		return big.NewInt(0), false
	}
	return n, true
}

func bungeeError(v any, fallback string) string {
	switch t := v.(type) {
	case string:
		if msg := strings.TrimSpace(t); msg != "" {
			return msg
		}
	case map[string]any:
		if msg, ok := t["message"].(string); ok && strings.TrimSpace(msg) != "" {
			return strings.TrimSpace(msg)
		}
	}
	return fallback
}
