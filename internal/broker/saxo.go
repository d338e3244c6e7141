package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"saxo-trader/internal/config"
	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/logging"
	"saxo-trader/internal/models"
)

// SaxoClient is the live Gateway implementation over the Saxo OpenAPI
// REST gateway. One client is bound to one environment for its whole
// lifetime; live and sim are separate instances.
type SaxoClient struct {
	env  config.Environment
	http *http.Client
	log  zerolog.Logger

	mu         sync.RWMutex
	token      string
	accountKey string
	clientKey  string
}

// NewSaxoClient creates a gateway client for the environment.
func NewSaxoClient(env config.Environment, log zerolog.Logger) *SaxoClient {
	return &SaxoClient{
		env:  env,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log.With().Str("component", "saxo").Str("env", string(env.Name)).Logger(),
	}
}

// SetToken installs the bearer token used for subsequent calls. The
// session manager calls this on every renewal.
func (c *SaxoClient) SetToken(token models.Token) {
	c.mu.Lock()
	c.token = token.AccessToken
	c.mu.Unlock()
}

func (c *SaxoClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// apiError mirrors the gateway's error body.
type apiError struct {
	ErrorCode string `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func (c *SaxoClient) do(ctx context.Context, method, path string, query url.Values, payload, out interface{}) error {
	u := c.env.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logging.LogAPICall(c.log, method, path, time.Since(start), err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	logging.LogAPICall(c.log, method, path, time.Since(start), nil)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		_ = json.Unmarshal(data, &ae)
		msg := ae.Message
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return apperrors.NewBrokerError(resp.StatusCode, ae.ErrorCode, fmt.Sprintf("%s %s: %s", method, path, msg))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parsing response from %s: %w", path, err)
		}
	}
	return nil
}

// accountContext resolves and caches the account and client keys the
// order endpoints require.
func (c *SaxoClient) accountContext(ctx context.Context) (accountKey, clientKey string, err error) {
	c.mu.RLock()
	accountKey, clientKey = c.accountKey, c.clientKey
	c.mu.RUnlock()
	if accountKey != "" && clientKey != "" {
		return accountKey, clientKey, nil
	}

	var user struct {
		ClientKey string `json:"ClientKey"`
	}
	if err := c.do(ctx, http.MethodGet, "/port/v1/users/me", nil, nil, &user); err != nil {
		return "", "", apperrors.Wrap(err, "fetching user")
	}

	var accounts struct {
		Data []struct {
			AccountKey string `json:"AccountKey"`
			Active     bool   `json:"Active"`
		} `json:"Data"`
	}
	if err := c.do(ctx, http.MethodGet, "/port/v1/accounts/me", nil, nil, &accounts); err != nil {
		return "", "", apperrors.Wrap(err, "fetching accounts")
	}
	for _, a := range accounts.Data {
		if a.Active {
			accountKey = a.AccountKey
			break
		}
	}
	if accountKey == "" && len(accounts.Data) > 0 {
		accountKey = accounts.Data[0].AccountKey
	}
	if accountKey == "" {
		return "", "", apperrors.New("no account available")
	}

	c.mu.Lock()
	c.accountKey, c.clientKey = accountKey, user.ClientKey
	c.mu.Unlock()
	return accountKey, user.ClientKey, nil
}

// FindInstrument resolves a ticker like "USDJPY" to its UIC.
func (c *SaxoClient) FindInstrument(ctx context.Context, ticker string) (models.InstrumentRef, error) {
	q := url.Values{}
	q.Set("Keywords", ticker)
	q.Set("AssetTypes", "FxSpot")

	var result struct {
		Data []struct {
			Identifier  int    `json:"Identifier"`
			Symbol      string `json:"Symbol"`
			Description string `json:"Description"`
		} `json:"Data"`
	}
	if err := c.do(ctx, http.MethodGet, "/ref/v1/instruments", q, nil, &result); err != nil {
		return models.InstrumentRef{}, err
	}

	for _, d := range result.Data {
		if strings.EqualFold(d.Symbol, ticker) {
			return models.InstrumentRef{
				Ticker:        d.Symbol,
				UIC:           d.Identifier,
				Description:   d.Description,
				QuoteCurrency: quoteCurrency(d.Symbol),
			}, nil
		}
	}
	return models.InstrumentRef{}, apperrors.Wrapf(apperrors.ErrInstrumentNotFound, "ticker %s", ticker)
}

// quoteCurrency extracts the quote side of an FX pair symbol.
func quoteCurrency(symbol string) string {
	if len(symbol) >= 6 {
		return strings.ToUpper(symbol[len(symbol)-3:])
	}
	return ""
}

// Quote returns the current bid/ask for the instrument.
func (c *SaxoClient) Quote(ctx context.Context, instrument models.InstrumentRef) (models.Quote, error) {
	q := url.Values{}
	q.Set("Uic", fmt.Sprintf("%d", instrument.UIC))
	q.Set("AssetType", "FxSpot")

	var result struct {
		Quote struct {
			Bid float64 `json:"Bid"`
			Ask float64 `json:"Ask"`
		} `json:"Quote"`
	}
	if err := c.do(ctx, http.MethodGet, "/trade/v1/infoprices", q, nil, &result); err != nil {
		return models.Quote{}, err
	}
	if result.Quote.Bid <= 0 || result.Quote.Ask <= 0 {
		return models.Quote{}, apperrors.Wrapf(apperrors.ErrQuoteUnavailable, "ticker %s", instrument.Ticker)
	}
	return models.Quote{Bid: result.Quote.Bid, Ask: result.Quote.Ask}, nil
}

// PlaceOrder submits an order to the gateway.
func (c *SaxoClient) PlaceOrder(ctx context.Context, req OrderRequest) (models.OrderRecord, error) {
	accountKey, _, err := c.accountContext(ctx)
	if err != nil {
		return models.OrderRecord{}, err
	}

	duration := "GoodTillCancel"
	if req.Type == models.OrderTypeMarket {
		duration = "DayOrder"
	}
	payload := map[string]interface{}{
		"AccountKey":    accountKey,
		"Uic":           req.Instrument.UIC,
		"AssetType":     "FxSpot",
		"Amount":        req.Amount,
		"BuySell":       string(req.Direction),
		"OrderType":     string(req.Type),
		"ManualOrder":   false,
		"OrderDuration": map[string]string{"DurationType": duration},
	}
	if req.Type != models.OrderTypeMarket {
		payload["OrderPrice"] = req.Price
	}

	var result struct {
		OrderID string `json:"OrderId"`
	}
	if err := c.do(ctx, http.MethodPost, "/trade/v2/orders", nil, payload, &result); err != nil {
		var be *apperrors.BrokerError
		if apperrors.As(err, &be) && be.StatusCode == http.StatusBadRequest {
			err = apperrors.NewRejectionError(be.Code, be.Message)
		}
		return models.OrderRecord{}, apperrors.NewOrderError("", req.Instrument.Ticker, "place", err)
	}
	if result.OrderID == "" {
		return models.OrderRecord{}, apperrors.NewOrderError("", req.Instrument.Ticker, "place", apperrors.New("gateway returned no order id"))
	}

	logging.LogOrder(c.log, result.OrderID, req.Instrument.Ticker, string(req.Direction), string(models.OrderStatusWorking))

	return models.OrderRecord{
		OrderID:        result.OrderID,
		UIC:            req.Instrument.UIC,
		Direction:      req.Direction,
		Type:           req.Type,
		Amount:         req.Amount,
		RequestedPrice: req.Price,
		Status:         models.OrderStatusWorking,
	}, nil
}

// CancelOrder cancels a working order.
func (c *SaxoClient) CancelOrder(ctx context.Context, orderID string) error {
	accountKey, _, err := c.accountContext(ctx)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("AccountKey", accountKey)
	if err := c.do(ctx, http.MethodDelete, "/trade/v2/orders/"+orderID, q, nil, nil); err != nil {
		return apperrors.NewOrderError(orderID, "", "cancel", err)
	}
	c.log.Info().Str("order_id", orderID).Msg("order canceled")
	return nil
}

// WorkingOrders lists the account's open orders.
func (c *SaxoClient) WorkingOrders(ctx context.Context) ([]models.OrderRecord, error) {
	var result struct {
		Data []struct {
			OrderID       string  `json:"OrderId"`
			UIC           int     `json:"Uic"`
			BuySell       string  `json:"BuySell"`
			OpenOrderType string  `json:"OpenOrderType"`
			Amount        float64 `json:"Amount"`
			Price         float64 `json:"Price"`
			Status        string  `json:"Status"`
		} `json:"Data"`
	}
	if err := c.do(ctx, http.MethodGet, "/port/v1/orders/me", nil, nil, &result); err != nil {
		return nil, err
	}

	orders := make([]models.OrderRecord, 0, len(result.Data))
	for _, d := range result.Data {
		orders = append(orders, models.OrderRecord{
			OrderID:        d.OrderID,
			UIC:            d.UIC,
			Direction:      models.Direction(d.BuySell),
			Type:           models.OrderType(d.OpenOrderType),
			Amount:         d.Amount,
			RequestedPrice: d.Price,
			Status:         models.OrderStatusWorking,
		})
	}
	return orders, nil
}

// Positions lists the account's open positions.
func (c *SaxoClient) Positions(ctx context.Context) ([]models.PositionRecord, error) {
	q := url.Values{}
	q.Set("FieldGroups", "PositionBase,PositionView")

	var result struct {
		Data []struct {
			PositionID   string `json:"PositionId"`
			PositionBase struct {
				UIC               int     `json:"Uic"`
				Amount            float64 `json:"Amount"`
				OpenPrice         float64 `json:"OpenPrice"`
				SourceOrderID     string  `json:"SourceOrderId"`
				ExecutionTimeOpen string  `json:"ExecutionTimeOpen"`
			} `json:"PositionBase"`
		} `json:"Data"`
	}
	if err := c.do(ctx, http.MethodGet, "/port/v1/positions/me", q, nil, &result); err != nil {
		return nil, err
	}

	positions := make([]models.PositionRecord, 0, len(result.Data))
	for _, d := range result.Data {
		positions = append(positions, models.PositionRecord{
			PositionID:    d.PositionID,
			UIC:           d.PositionBase.UIC,
			OpenPrice:     d.PositionBase.OpenPrice,
			Amount:        d.PositionBase.Amount,
			SourceOrderID: d.PositionBase.SourceOrderID,
			OpenedAt:      parseAPITime(d.PositionBase.ExecutionTimeOpen),
		})
	}
	return positions, nil
}

// ClosedPositions lists settlement records closed within [from, to].
func (c *SaxoClient) ClosedPositions(ctx context.Context, from, to time.Time) ([]models.ClosedPositionRecord, error) {
	var result struct {
		Data []struct {
			ClosedPosition struct {
				UIC                int     `json:"Uic"`
				ClosingPrice       float64 `json:"ClosingPrice"`
				ExecutionTimeClose string  `json:"ExecutionTimeClose"`
				ProfitLossOnTrade  float64 `json:"ProfitLossOnTrade"`
				OpeningPositionID  string  `json:"OpeningPositionId"`
				ClosingPositionID  string  `json:"ClosingPositionId"`
				SourceOrderID      string  `json:"SourceOrderId"`
			} `json:"ClosedPosition"`
		} `json:"Data"`
	}
	if err := c.do(ctx, http.MethodGet, "/port/v1/closedpositions/me", nil, nil, &result); err != nil {
		return nil, err
	}

	records := make([]models.ClosedPositionRecord, 0, len(result.Data))
	for _, d := range result.Data {
		cp := d.ClosedPosition
		closedAt := parseAPITime(cp.ExecutionTimeClose)
		if closedAt.Before(from) || closedAt.After(to) {
			continue
		}
		records = append(records, models.ClosedPositionRecord{
			UIC:               cp.UIC,
			ClosePrice:        cp.ClosingPrice,
			ClosedAt:          closedAt,
			RealizedPnL:       cp.ProfitLossOnTrade,
			OpeningPositionID: cp.OpeningPositionID,
			ClosingPositionID: cp.ClosingPositionID,
			SourceOrderID:     cp.SourceOrderID,
		})
	}
	return records, nil
}

// ClosePosition offsets an open position with a market order in the
// opposite direction for the position's full amount.
func (c *SaxoClient) ClosePosition(ctx context.Context, pos models.PositionRecord) (models.OrderRecord, error) {
	direction := models.DirectionSell
	if pos.Amount < 0 {
		direction = models.DirectionBuy
	}
	return c.PlaceOrder(ctx, OrderRequest{
		Instrument: models.InstrumentRef{UIC: pos.UIC},
		Direction:  direction,
		Type:       models.OrderTypeMarket,
		Amount:     math.Abs(pos.Amount),
	})
}

// Balance returns the account's funds.
func (c *SaxoClient) Balance(ctx context.Context) (models.Balance, error) {
	var result struct {
		CashBalance               float64 `json:"CashBalance"`
		MarginAvailableForTrading float64 `json:"MarginAvailableForTrading"`
		Currency                  string  `json:"Currency"`
	}
	if err := c.do(ctx, http.MethodGet, "/port/v1/balances/me", nil, nil, &result); err != nil {
		return models.Balance{}, err
	}
	return models.Balance{
		CashBalance:     result.CashBalance,
		MarginAvailable: result.MarginAvailableForTrading,
		Currency:        result.Currency,
	}, nil
}

// parseAPITime parses the gateway's UTC timestamps, which arrive with
// or without fractional seconds.
func parseAPITime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000000Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
