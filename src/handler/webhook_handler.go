package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"pyramidtracker/src/connectors"
	"pyramidtracker/src/model"
	"pyramidtracker/src/symbols"
	"pyramidtracker/src/trade"
	"pyramidtracker/src/validation"
)

// SecretHeader authenticates inbound webhook deliveries.
const SecretHeader = "X-Webhook-Secret"

type signalEngine interface {
	RecordPyramid(ctx context.Context, alert *model.WebhookAlert) (*trade.PyramidOutcome, error)
	RecordExit(ctx context.Context, alert *model.WebhookAlert) (*trade.ExitOutcome, error)
}

// WebhookHandler ingests entry and exit signals. Duplicate deliveries get a
// 200 with a duplicate/already-closed status; they are an expected operating
// condition, not a client error.
func WebhookHandler(engine signalEngine, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && r.Header.Get(SecretHeader) != secret {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var alert model.WebhookAlert
		if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		logger.WithFields(map[string]interface{}{
			"type":     alert.Type,
			"exchange": alert.Exchange,
			"symbol":   alert.Symbol,
			"alert_id": alert.AlertID,
		}).Info("Webhook signal received")

		var (
			outcome interface{}
			err     error
		)
		switch alert.Type {
		case model.AlertTypePyramid:
			outcome, err = engine.RecordPyramid(r.Context(), &alert)
		case model.AlertTypeExit:
			outcome, err = engine.RecordExit(r.Context(), &alert)
		default:
			http.Error(w, "unknown signal type", http.StatusBadRequest)
			return
		}

		if err != nil {
			writeSignalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, outcome)
	}
}

func writeSignalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrMalformedAlert),
		errors.Is(err, model.ErrInvalidPyramidIndex),
		errors.Is(err, symbols.ErrUnrecognizedSymbol),
		errors.Is(err, symbols.ErrUnknownExchange),
		errors.Is(err, connectors.ErrSymbolNotFound):
		writeJSON(w, http.StatusBadRequest, errorBody(err))

	case errors.Is(err, validation.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err))

	case errors.Is(err, trade.ErrNoOpenTrade):
		writeJSON(w, http.StatusConflict, errorBody(err))

	case errors.Is(err, connectors.ErrExchangeUnavailable),
		errors.Is(err, connectors.ErrUnsupportedExchange):
		// Retryable from the sender's point of view.
		writeJSON(w, http.StatusBadGateway, errorBody(err))

	default:
		logger.WithError(err).Error("Signal processing failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}
