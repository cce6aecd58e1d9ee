package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"

	"perpagent/src/model"
)

// baseAdapter implements everything common to the two contract families
// — the wire plumbing — ported from connectors/phemexConnector.go's
// GetPositionsUSDT/PlaceOrder/CancelAll/GetActiveOrders/GetFills/
// GetTicker/GetKlines methods. linear.go and inverse.go embed this and
// only override ContractType/CalculateQuantity/CalculatePnL and symbol
// normalization.
type baseAdapter struct {
	*restClient
	normalizeSymbol func(string) string
	contracts       map[string]model.Contract
}

func newBaseAdapter(cfg Config, normalize func(string) string) *baseAdapter {
	return &baseAdapter{
		restClient:      newRestClient(cfg.APIKey, cfg.APISecret, cfg.BaseURL),
		normalizeSymbol: normalize,
		contracts:       map[string]model.Contract{},
	}
}

type tickerWire struct {
	LastRp  string `json:"lastRp"`
	MarkRp  string `json:"markRp"`
	IndexRp string `json:"indexRp"`
}

func (a *baseAdapter) GetTicker(ctx context.Context, symbol string, includeMark bool) (Ticker, error) {
	a.logRequest("GetTicker", symbol)
	resp, err := a.doRequest("GET", "/md/v3/ticker/24hr", "symbol="+a.normalizeSymbol(symbol), nil)
	if err != nil {
		return Ticker{}, err
	}
	var tw tickerWire
	if err := json.Unmarshal(resp.Data, &tw); err != nil {
		return Ticker{}, err
	}
	t := Ticker{Last: parseDecimal(tw.LastRp)}
	if includeMark {
		t.MarkPrice = parseDecimal(tw.MarkRp)
		t.IndexPrice = parseDecimal(tw.IndexRp)
	}
	return t, nil
}

type klineWire struct {
	Rows [][]interface{} `json:"rows"`
}

var intervalToResolution = map[string]int{
	"1m": 60, "5m": 300, "15m": 900, "30m": 1800, "1h": 3600, "4h": 14400, "1d": 86400,
}

func (a *baseAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	a.logRequest("GetCandles", symbol)
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	res, ok := intervalToResolution[interval]
	if !ok {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}
	resp, err := a.doRequest("GET", "/md/perpetual/kline",
		fmt.Sprintf("symbol=%s&resolution=%d&limit=%d", a.normalizeSymbol(symbol), res, limit), nil)
	if err != nil {
		return nil, err
	}
	var kw klineWire
	if err := json.Unmarshal(resp.Data, &kw); err != nil {
		return nil, err
	}
	candles := make([]model.Candle, 0, len(kw.Rows))
	for _, row := range kw.Rows {
		if len(row) < 6 {
			continue
		}
		ts, _ := row[0].(float64)
		candles = append(candles, model.Candle{
			Symbol: symbol, Interval: interval,
			Datetime: time.Unix(int64(ts), 0).UTC(),
			Open:     parseAny(row[1]), High: parseAny(row[2]),
			Low: parseAny(row[3]), Close: parseAny(row[4]),
			Volume: parseAny(row[5]),
		})
	}
	// caller tolerates volume=0 on test networks (spec §4.1); ascending
	// time order is already guaranteed by the venue.
	return candles, nil
}

type accountPositionsWire struct {
	Account struct {
		AccountBalanceRv string `json:"accountBalanceRv"`
	} `json:"account"`
	Positions []struct {
		Symbol          string `json:"symbol"`
		Side            string `json:"side"`
		SizeRq          string `json:"sizeRq"`
		AvgEntryPriceRp string `json:"avgEntryPriceRp"`
		MarkPriceRp     string `json:"markPriceRp"`
		LeverageRr      string `json:"leverageRr"`
	} `json:"positions"`
}

func (a *baseAdapter) getAccountPositions(ctx context.Context) (*accountPositionsWire, error) {
	resp, err := a.doRequest("GET", "/accounts/positions", "currency=USD", nil)
	if err != nil {
		return nil, err
	}
	var parsed accountPositionsWire
	return &parsed, json.Unmarshal(resp.Data, &parsed)
}

func (a *baseAdapter) GetAccount(ctx context.Context) (Account, error) {
	a.logRequest("GetAccount", "")
	wire, err := a.getAccountPositions(ctx)
	if err != nil {
		return Account{}, err
	}
	total := parseDecimal(wire.Account.AccountBalanceRv)
	var margin, unrealized decimal.Decimal
	for _, p := range wire.Positions {
		margin = margin.Add(parseDecimal(p.AvgEntryPriceRp).Mul(parseDecimal(p.SizeRq)))
	}
	return Account{
		Total:          total, // total excludes unrealized PnL per spec §4.1
		Available:      total.Sub(margin),
		PositionMargin: margin,
		UnrealizedPnl:  unrealized,
	}, nil
}

func (a *baseAdapter) GetPositions(ctx context.Context) ([]PositionSnapshot, error) {
	a.logRequest("GetPositions", "")
	wire, err := a.getAccountPositions(ctx)
	if err != nil {
		return nil, err
	}
	var out []PositionSnapshot
	for _, p := range wire.Positions {
		size := parseDecimal(p.SizeRq)
		if size.IsZero() {
			continue
		}
		side := model.PositionSideLong
		if p.Side == "Sell" {
			side = model.PositionSideShort
		}
		out = append(out, PositionSnapshot{
			Symbol: p.Symbol, Side: side, Quantity: size,
			EntryPrice: parseDecimal(p.AvgEntryPriceRp),
			MarkPrice:  parseDecimal(p.MarkPriceRp),
			Leverage:   parseDecimal(p.LeverageRr),
		})
	}
	return out, nil
}

func (a *baseAdapter) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderResult, error) {
	a.logRequest("PlaceOrder", req.Contract.Symbol)

	size := req.Contract.ClampSize(req.Size)
	side := "Buy"
	if req.Side == model.PositionSideShort {
		side = "Sell"
	}

	body := map[string]interface{}{
		"symbol":      a.normalizeSymbol(req.Contract.Symbol),
		"side":        side,
		"ordType":     "Market",
		"orderQtyRq":  size.String(),
		"reduceOnly":  req.ReduceOnly,
		"timeInForce": "ImmediateOrCancel",
	}
	if req.Price != nil {
		body["priceRp"] = req.Price.String()
		body["ordType"] = "Limit"
		body["timeInForce"] = string(req.TIF)
	}

	b, _ := json.Marshal(body)
	resp, err := a.doRequest("POST", "/orders", "", b)
	if err != nil {
		return OrderResult{}, err
	}
	if resp.Code != 0 {
		if resp.Code == 10002 || resp.Code == 11020 {
			return OrderResult{}, &ErrInsufficientAvailable{Symbol: req.Contract.Symbol}
		}
		return OrderResult{}, fmt.Errorf("place order failed: %s", resp.Msg)
	}

	var parsed struct {
		OrderID string `json:"orderID"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(resp.Data, &parsed); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{ID: parsed.OrderID, Status: parsed.Status}, nil
}

// PlaceTriggerOrder enforces the safety-distance adjustment from spec
// §4.1: if the trigger is already on the triggered side of mark it is
// shifted by 0.5%; if within 0.3% of mark it is shifted out to 0.3%.
func (a *baseAdapter) PlaceTriggerOrder(ctx context.Context, req TriggerOrderRequest) (string, error) {
	a.logRequest("PlaceTriggerOrder", req.Contract.Symbol)

	trigger := adjustTriggerForSafety(req.TriggerPrice, req.Mark, req.Rule)
	trigger = req.Contract.RoundPrice(trigger)

	side := "Sell"
	if req.Side == model.PositionSideShort {
		side = "Buy"
	}

	body := map[string]interface{}{
		"symbol":        a.normalizeSymbol(req.Contract.Symbol),
		"side":          side,
		"ordType":       "Stop",
		"triggerPriceRp": trigger.String(),
		"orderQtyRq":    req.CloseSize.String(),
		"reduceOnly":    true,
	}
	b, _ := json.Marshal(body)
	resp, err := a.doRequest("POST", "/orders", "", b)
	if err != nil {
		return "", err
	}
	var parsed struct {
		OrderID string `json:"orderID"`
	}
	if err := json.Unmarshal(resp.Data, &parsed); err != nil {
		return "", err
	}
	return parsed.OrderID, nil
}

// adjustTriggerForSafety implements spec §4.1/§8's boundary rules.
func adjustTriggerForSafety(trigger, mark decimal.Decimal, rule TriggerRule) decimal.Decimal {
	if mark.IsZero() {
		return trigger
	}
	deviation := trigger.Sub(mark).Div(mark).Abs()

	alreadyTriggered := (rule == TriggerRuleGTE && trigger.LessThanOrEqual(mark)) ||
		(rule == TriggerRuleLTE && trigger.GreaterThanOrEqual(mark))

	switch {
	case alreadyTriggered:
		shift := mark.Mul(decimal.NewFromFloat(0.005))
		if rule == TriggerRuleGTE {
			return mark.Add(shift)
		}
		return mark.Sub(shift)
	case deviation.LessThan(decimal.NewFromFloat(0.003)):
		shift := mark.Mul(decimal.NewFromFloat(0.003))
		if rule == TriggerRuleGTE {
			return mark.Add(shift)
		}
		return mark.Sub(shift)
	default:
		return trigger
	}
}

func (a *baseAdapter) CancelTriggerOrders(ctx context.Context, symbol string) error {
	a.logRequest("CancelTriggerOrders", symbol)
	_, err := a.doRequest("DELETE", "/orders/all", "symbol="+a.normalizeSymbol(symbol), nil)
	// 404 treated as success per spec §4.1 (idempotent cancel).
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	return err != nil && containsStatus(err.Error(), "404")
}

func containsStatus(s, code string) bool {
	return len(s) >= len(code) && (s[:3] == code || (len(s) > 5 && s[5:8] == code))
}

func (a *baseAdapter) GetMyTrades(ctx context.Context, symbol string, limit int, startTime *time.Time) ([]Fill, error) {
	a.logRequest("GetMyTrades", symbol)
	query := "symbol=" + a.normalizeSymbol(symbol)
	resp, err := a.doRequest("GET", "/trades/fills", query, nil)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		OrderID   string `json:"orderID"`
		Side      string `json:"side"`
		PriceRp   string `json:"priceRp"`
		QtyRq     string `json:"qtyRq"`
		FeeRv     string `json:"feeRv"`
		CreatedAt int64  `json:"createdAt"`
	}
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, err
	}
	fills := make([]Fill, 0, len(rows))
	for _, r := range rows {
		fills = append(fills, Fill{
			OrderID: r.OrderID, Symbol: symbol, Side: r.Side,
			Price: parseDecimal(r.PriceRp), Quantity: parseDecimal(r.QtyRq),
			Fee: parseDecimal(r.FeeRv), Timestamp: time.UnixMilli(r.CreatedAt).UTC(),
		})
		if limit > 0 && len(fills) >= limit {
			break
		}
	}
	return fills, nil
}

func (a *baseAdapter) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal) error {
	a.logRequest("SetLeverage", symbol)
	body := map[string]interface{}{"symbol": a.normalizeSymbol(symbol), "leverageRr": leverage.String()}
	b, _ := json.Marshal(body)
	_, err := a.doRequest("PUT", "/positions/leverage", "", b)
	if err != nil {
		// non-fatal when a position already exists, per spec §4.1
		logger.WithError(err).Warn("SetLeverage failed, continuing")
		return nil
	}
	return nil
}

func (a *baseAdapter) GetContract(ctx context.Context, symbol string) (model.Contract, error) {
	if c, ok := a.contracts[symbol]; ok {
		return c, nil
	}
	resp, err := a.doRequest("GET", "/public/products", "", nil)
	if err != nil {
		return model.Contract{}, err
	}
	var products []struct {
		Symbol           string `json:"symbol"`
		QuantoMultiplier string `json:"contractSizeRv"`
		TickSizeRp       string `json:"tickSizeRp"`
		MinOrderSizeRq   string `json:"minOrderSizeRq"`
		MaxOrderSizeRq   string `json:"maxOrderSizeRq"`
	}
	if err := json.Unmarshal(resp.Data, &products); err != nil {
		return model.Contract{}, err
	}
	target := a.normalizeSymbol(symbol)
	for _, p := range products {
		if p.Symbol != target {
			continue
		}
		c := model.Contract{
			Symbol: symbol, ExchangeSymbol: p.Symbol,
			QuantoMultiplier: parseDecimalOr(p.QuantoMultiplier, decimal.NewFromInt(1)),
			OrderPriceRound:  parseDecimalOr(p.TickSizeRp, decimal.NewFromFloat(0.01)),
			MarkPriceRound:   parseDecimalOr(p.TickSizeRp, decimal.NewFromFloat(0.01)),
			OrderSizeMin:     parseDecimal(p.MinOrderSizeRq),
			OrderSizeMax:     parseDecimal(p.MaxOrderSizeRq),
		}
		a.contracts[symbol] = c
		return c, nil
	}
	return model.Contract{}, fmt.Errorf("no contract metadata for %s", symbol)
}

func parseDecimal(s string) decimal.Decimal {
	return parseDecimalOr(s, decimal.Zero)
}

func parseDecimalOr(s string, fallback decimal.Decimal) decimal.Decimal {
	if s == "" {
		return fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseAny(v interface{}) decimal.Decimal {
	switch x := v.(type) {
	case string:
		return parseDecimal(x)
	case float64:
		return decimal.NewFromFloat(x)
	default:
		return decimal.Zero
	}
}
