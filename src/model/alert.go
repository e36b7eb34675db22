package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	AlertTypePyramid = "pyramid"
	AlertTypeExit    = "exit"
)

var (
	ErrMalformedAlert      = errors.New("malformed alert")
	ErrInvalidPyramidIndex = errors.New("pyramid index out of range")
)

// WebhookAlert is the inbound signal shape posted by the alerting source.
//
//	Entry: { "type": "pyramid", "index": 1..5, "exchange": "...", "symbol": "...", "size": 0.5, "alert_id": "..." }
//	Exit:  { "type": "exit", "exchange": "...", "symbol": "...", "alert_id": "..." }
type WebhookAlert struct {
	Type     string  `json:"type"`
	Index    int     `json:"index,omitempty"`
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	Size     float64 `json:"size,omitempty"`
	AlertID  string  `json:"alert_id"`
}

// Validate rejects malformed payloads synchronously, before any state is
// touched. alert_id is the idempotency token and is never optional.
func (a *WebhookAlert) Validate() error {
	if strings.TrimSpace(a.AlertID) == "" {
		return fmt.Errorf("%w: missing alert_id", ErrMalformedAlert)
	}
	if strings.TrimSpace(a.Exchange) == "" {
		return fmt.Errorf("%w: missing exchange", ErrMalformedAlert)
	}
	if strings.TrimSpace(a.Symbol) == "" {
		return fmt.Errorf("%w: missing symbol", ErrMalformedAlert)
	}

	switch a.Type {
	case AlertTypePyramid:
		if a.Index < 1 || a.Index > MaxPyramids {
			return fmt.Errorf("%w: %d", ErrInvalidPyramidIndex, a.Index)
		}
		if a.Size <= 0 {
			return fmt.Errorf("%w: size must be positive", ErrMalformedAlert)
		}
	case AlertTypeExit:
		// no extra fields
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedAlert, a.Type)
	}
	return nil
}

// SignalKey derives the deterministic deduplication key for this alert:
// (alert id, signal type, pyramid index or "exit").
func (a *WebhookAlert) SignalKey() string {
	suffix := "exit"
	if a.Type == AlertTypePyramid {
		suffix = strconv.Itoa(a.Index)
	}
	return a.AlertID + ":" + a.Type + ":" + suffix
}
