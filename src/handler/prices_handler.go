package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/exchange"
)

type tickerSource interface {
	GetTicker(ctx context.Context, symbol string, includeMark bool) (exchange.Ticker, error)
}

type pricesResponse struct {
	Prices map[string]decimal.Decimal `json:"prices"`
}

// pricesCache is the dashboard-local 5-second cache spec §6 calls out
// for /api/prices specifically — separate from the exchange adapter's
// own per-category TTLs (cache.Cache), since this endpoint's freshness
// requirement is a UI concern, not an exchange-admission one.
type pricesCache struct {
	mu        sync.Mutex
	fetchedAt time.Time
	values    map[string]decimal.Decimal
}

const pricesCacheTTL = 5 * time.Second

// PricesHandler serves GET /api/prices?symbols=CSV.
func PricesHandler(ex tickerSource) http.HandlerFunc {
	cache := &pricesCache{}

	return func(w http.ResponseWriter, r *http.Request) {
		symbolsParam := r.URL.Query().Get("symbols")
		if symbolsParam == "" {
			writeJSON(w, pricesResponse{Prices: map[string]decimal.Decimal{}})
			return
		}
		symbols := strings.Split(symbolsParam, ",")

		cache.mu.Lock()
		if cache.values != nil && time.Since(cache.fetchedAt) < pricesCacheTTL {
			values := subsetPrices(cache.values, symbols)
			cache.mu.Unlock()
			writeJSON(w, pricesResponse{Prices: values})
			return
		}
		cache.mu.Unlock()

		fresh := map[string]decimal.Decimal{}
		for _, symbol := range symbols {
			symbol = strings.TrimSpace(symbol)
			if symbol == "" {
				continue
			}
			ticker, err := ex.GetTicker(r.Context(), symbol, false)
			if err != nil {
				logger.WithError(err).WithField("symbol", symbol).Warn("failed to fetch ticker for /api/prices")
				continue
			}
			fresh[symbol] = ticker.Last
		}

		cache.mu.Lock()
		cache.values = fresh
		cache.fetchedAt = time.Now()
		cache.mu.Unlock()

		writeJSON(w, pricesResponse{Prices: fresh})
	}
}

func subsetPrices(all map[string]decimal.Decimal, symbols []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if v, ok := all[symbol]; ok {
			out[symbol] = v
		}
	}
	return out
}
