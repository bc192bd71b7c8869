// Package dydx is the REST adapter for the dYdX margin venue.
package dydx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"margin_maker/internal/config"
	"margin_maker/internal/core"
	apperrors "margin_maker/pkg/errors"
	"margin_maker/pkg/http"

	"github.com/shopspring/decimal"
)

// Exchange implements core.IExchange against the dYdX REST API.
type Exchange struct {
	client *http.Client
	logger core.ILogger
}

// signer signs requests with HMAC-SHA256 over timestamp, method and path.
type signer struct {
	apiKey    string
	secretKey string
}

func (s *signer) SignRequest(req *nethttp.Request) error {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	path := req.URL.Path
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}
	message := timestamp + req.Method + path

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(message))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("DYDX-API-KEY", s.apiKey)
	req.Header.Set("DYDX-SIGNATURE", signature)
	req.Header.Set("DYDX-TIMESTAMP", timestamp)
	return nil
}

// NewExchange creates a dYdX REST adapter.
func NewExchange(cfg *config.ExchangeConfig, logger core.ILogger) *Exchange {
	sg := &signer{apiKey: cfg.APIKey, secretKey: cfg.SecretKey}
	client := http.NewClient(cfg.BaseURL, time.Duration(cfg.TimeoutSeconds)*time.Second, sg)
	return &Exchange{
		client: client,
		logger: logger.WithField("component", "dydx"),
	}
}

func (e *Exchange) GetName() string { return "dydx" }

type wireLevel struct {
	ID     string `json:"id"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

type wireOrder struct {
	ID            string `json:"id"`
	ClientID      string `json:"clientId"`
	Market        string `json:"market"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	CreatedAtUnix int64  `json:"createdAt"`
}

// GetOrderBook fetches the current book snapshot.
func (e *Exchange) GetOrderBook(ctx context.Context, pair string) (*core.BookSnapshot, error) {
	body, err := e.client.Get(ctx, "/v1/orderbook/"+pair, nil)
	if err != nil {
		return nil, mapAPIError(err)
	}

	var resp struct {
		Bids []wireLevel `json:"bids"`
		Asks []wireLevel `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed orderbook response: %w", err)
	}

	snap := &core.BookSnapshot{}
	if snap.Bids, err = parseLevels(resp.Bids); err != nil {
		return nil, err
	}
	if snap.Asks, err = parseLevels(resp.Asks); err != nil {
		return nil, err
	}
	return snap, nil
}

// PlaceOrder submits a limit order.
func (e *Exchange) PlaceOrder(ctx context.Context, req *core.PlaceOrderRequest) (*core.Order, error) {
	payload := map[string]interface{}{
		"market":   req.Pair,
		"side":     string(req.Side),
		"price":    req.Price.String(),
		"amount":   req.Quantity.String(),
		"postOnly": req.PostOnly,
		"clientId": req.ClientOrderID,
	}

	body, err := e.client.Post(ctx, "/v1/orders", payload)
	if err != nil {
		return nil, mapAPIError(err)
	}

	var resp struct {
		Order wireOrder `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed order response: %w", err)
	}
	return parseOrder(&resp.Order)
}

// CancelOrder withdraws a resting order.
func (e *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	_, err := e.client.Delete(ctx, "/v1/orders/"+orderID, nil)
	if err != nil {
		return mapAPIError(err)
	}
	return nil
}

// GetOrder fetches the current state of an order.
func (e *Exchange) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	body, err := e.client.Get(ctx, "/v1/orders/"+orderID, nil)
	if err != nil {
		return nil, mapAPIError(err)
	}

	var resp struct {
		Order wireOrder `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed order response: %w", err)
	}
	return parseOrder(&resp.Order)
}

// GetBalances fetches every asset leg's signed balance. Negative values are
// borrowed amounts.
func (e *Exchange) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	body, err := e.client.Get(ctx, "/v1/balances", nil)
	if err != nil {
		return nil, mapAPIError(err)
	}

	var resp struct {
		Balances map[string]string `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed balances response: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(resp.Balances))
	for asset, raw := range resp.Balances {
		bal, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: balance %q for %s", apperrors.ErrStaleBalance, raw, asset)
		}
		out[asset] = bal
	}
	return out, nil
}

// GetOraclePrice fetches the venue's dollar price for one asset.
func (e *Exchange) GetOraclePrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	body, err := e.client.Get(ctx, "/v1/prices/"+asset, nil)
	if err != nil {
		return decimal.Zero, mapAPIError(err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("malformed price response: %w", err)
	}

	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q for %s", apperrors.ErrStaleBalance, resp.Price, asset)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s for %s", apperrors.ErrStaleBalance, price, asset)
	}
	return price, nil
}

// GetTickSize fetches the instrument tick size from market metadata.
func (e *Exchange) GetTickSize(ctx context.Context, pair string) (decimal.Decimal, error) {
	body, err := e.client.Get(ctx, "/v1/markets/"+pair, nil)
	if err != nil {
		return decimal.Zero, mapAPIError(err)
	}

	var resp struct {
		Market struct {
			TickSize string `json:"tickSize"`
		} `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("malformed market response: %w", err)
	}

	tick, err := decimal.NewFromString(resp.Market.TickSize)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed tick size %q: %w", resp.Market.TickSize, err)
	}
	return tick, nil
}

func parseLevels(levels []wireLevel) ([]core.PriceLevel, error) {
	out := make([]core.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, fmt.Errorf("malformed level price %q: %w", l.Price, err)
		}
		qty, err := decimal.NewFromString(l.Amount)
		if err != nil {
			return nil, fmt.Errorf("malformed level amount %q: %w", l.Amount, err)
		}
		out = append(out, core.PriceLevel{ID: l.ID, Price: price, Quantity: qty})
	}
	return out, nil
}

func parseOrder(w *wireOrder) (*core.Order, error) {
	price, err := decimal.NewFromString(w.Price)
	if err != nil {
		return nil, fmt.Errorf("malformed order price %q: %w", w.Price, err)
	}
	qty, err := decimal.NewFromString(w.Amount)
	if err != nil {
		return nil, fmt.Errorf("malformed order amount %q: %w", w.Amount, err)
	}

	return &core.Order{
		ID:            w.ID,
		ClientOrderID: w.ClientID,
		Pair:          w.Market,
		Side:          core.Side(w.Side),
		Price:         price,
		Quantity:      qty,
		Status:        mapOrderStatus(w.Status),
		CreatedAt:     time.Unix(w.CreatedAtUnix, 0),
	}, nil
}

func mapOrderStatus(status string) core.OrderStatus {
	switch status {
	case "PENDING", "OPEN", "PARTIALLY_FILLED":
		return core.StatusSubmitted
	case "FILLED":
		return core.StatusFilled
	case "CANCELED":
		return core.StatusCanceled
	default:
		return core.StatusError
	}
}

// mapAPIError converts transport failures into the engine's sentinel errors.
func mapAPIError(err error) error {
	var apiErr *http.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}

	switch {
	case apiErr.StatusCode == nethttp.StatusNotFound:
		return fmt.Errorf("%w: %v", apperrors.ErrOrderNotFound, apiErr)
	case apiErr.StatusCode == nethttp.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", apperrors.ErrRateLimitExceeded, apiErr)
	case apiErr.StatusCode >= 500:
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, apiErr)
	default:
		return fmt.Errorf("%w: %v", apperrors.ErrOrderRejected, apiErr)
	}
}
