package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"pyramidtracker/src/model"
	"pyramidtracker/src/repository"
)

type tradeReader interface {
	Search(ctx context.Context, opts repository.TradeSearchOptions) ([]model.Trade, error)
	FindByID(ctx context.Context, id string) (*model.Trade, error)
}

// ListTradesHandler lists trades newest first. Filters: exchange, status,
// limit.
func ListTradesHandler(repo tradeReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := repository.TradeSearchOptions{
			Exchange: r.URL.Query().Get("exchange"),
			Status:   r.URL.Query().Get("status"),
		}

		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			limit, err := strconv.Atoi(limitParam)
			if err != nil || limit <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			opts.Limit = limit
		}

		trades, err := repo.Search(r.Context(), opts)
		if err != nil {
			logger.WithError(err).Error("Failed to list trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, trades)
	}
}

// GetTradeHandler returns one trade with its pyramids and exit.
func GetTradeHandler(repo tradeReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "tradeID")

		trade, err := repo.FindByID(r.Context(), id)
		if err != nil {
			logger.WithError(err).Error("Failed to fetch trade")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if trade == nil {
			http.Error(w, "trade not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, trade)
	}
}
