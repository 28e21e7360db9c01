// Package handlers mounts the inbound verification gate on the HTTP
// endpoints this service exposes. Business logic is injected; handlers
// never perform their own replay checks.
package handlers

import (
	"encoding/json"
	"net/http"

	"signal-relay/internal/common/logging"
	"signal-relay/internal/gate"
)

// Handlers wires gate-protected endpoints and the health check.
type Handlers struct {
	gate        *gate.Gate
	signals     gate.Handler
	payments    gate.Handler
	storeHealth func() error
	logger      logging.Logger
}

// New creates the handler set. signals and payments are the injected
// business-logic collaborators for the two protected endpoints.
// storeHealth reports replay-store reachability and may be nil.
func New(g *gate.Gate, signals, payments gate.Handler, storeHealth func() error, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Handlers{
		gate:        g,
		signals:     signals,
		payments:    payments,
		storeHealth: storeHealth,
		logger:      logger,
	}
}

// HandleSignal serves signed signal ingestion.
func (h *Handlers) HandleSignal() http.HandlerFunc {
	return h.gate.Wrap(h.signals)
}

// HandlePaymentWebhook serves signed payment-confirmation webhooks.
// Duplicate suppression here is what makes retried webhooks safe
// against double effects.
func (h *Handlers) HandlePaymentWebhook() http.HandlerFunc {
	return h.gate.Wrap(h.payments)
}

// Health reports service and replay-store status. The store being down
// degrades the response but does not fail it: the gate fails open.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status": "ok",
		"store":  "ok",
	}
	code := http.StatusOK

	if h.storeHealth != nil {
		if err := h.storeHealth(); err != nil {
			h.logger.Warn("Replay store health check failed",
				logging.Field{Key: "error", Value: err.Error()},
			)
			status["store"] = "unavailable"
			status["status"] = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
