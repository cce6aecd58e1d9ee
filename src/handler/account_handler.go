// Package handler implements the dashboard read API of spec §6,
// grounded on the teacher's handler package (src/handler/ordersHandler.go):
// each endpoint is a small constructor taking the narrow interface it
// needs and returning an http.HandlerFunc, so server.go can wire chi
// routes without the handler package knowing about routing at all.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/exchange"
	"perpagent/src/model"
)

var decimal100 = decimal.NewFromInt(100)

type accountSource interface {
	GetAccount(ctx context.Context) (exchange.Account, error)
}

type accountHistorySource interface {
	InitialBalance(ctx context.Context) (model.AccountHistorySnapshot, error)
}

type accountResponse struct {
	TotalBalance     string    `json:"totalBalance"`
	AvailableBalance string    `json:"availableBalance"`
	PositionMargin   string    `json:"positionMargin"`
	UnrealisedPnl    string    `json:"unrealisedPnl"`
	ReturnPercent    string    `json:"returnPercent"`
	InitialBalance   string    `json:"initialBalance"`
	Timestamp        time.Time `json:"timestamp"`
}

// AccountHandler serves GET /api/account. ex is expected to be the
// guarded exchange adapter, which already folds in cached/degraded
// serving per spec §4.3 — this handler stays ignorant of that policy.
func AccountHandler(ex accountSource, history accountHistorySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		account, err := ex.GetAccount(ctx)
		if err != nil {
			logger.WithError(err).Error("failed to fetch account for /api/account")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		initial, err := history.InitialBalance(ctx)
		if err != nil {
			logger.WithError(err).Warn("no account history yet for /api/account initial balance")
		}

		returnPercent := "0"
		if !initial.TotalValue.IsZero() {
			returnPercent = account.Total.Sub(initial.TotalValue).Div(initial.TotalValue).Mul(decimal100).String()
		}

		resp := accountResponse{
			TotalBalance:     account.Total.String(),
			AvailableBalance: account.Available.String(),
			PositionMargin:   account.PositionMargin.String(),
			UnrealisedPnl:    account.UnrealizedPnl.String(),
			ReturnPercent:    returnPercent,
			InitialBalance:   initial.TotalValue.String(),
			Timestamp:        time.Now().UTC(),
		}

		writeJSON(w, resp)
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode handler response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
