package handler

import (
	"context"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"perpagent/src/model"
)

type historySource interface {
	FindChronological(ctx context.Context, limit int) ([]model.AccountHistorySnapshot, error)
}

// HistoryHandler serves GET /api/history[?limit=N], returning the
// chronological oldest-first list spec §6 describes.
func HistoryHandler(history historySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 500)

		rows, err := history.FindChronological(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list account history for /api/history")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, rows)
	}
}

func parseLimit(r *http.Request, def int) int {
	param := r.URL.Query().Get("limit")
	if param == "" {
		return def
	}
	n, err := strconv.Atoi(param)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
