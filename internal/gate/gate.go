// Package gate validates and deduplicates inbound signed requests: the
// verifier authenticates, the replay guard admits, and only admitted
// first arrivals reach the business-logic collaborator.
package gate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"signal-relay/internal/common/errors"
	"signal-relay/internal/common/logging"
	"signal-relay/internal/delivery"
	"signal-relay/internal/replay"
	"signal-relay/internal/signing"
)

// ReplayHeader marks responses served from the idempotency cache.
const ReplayHeader = "X-Idempotent-Replay"

// Handler is the business-logic collaborator invoked on first arrival.
// It must return a serializable result and must not perform its own
// replay check.
type Handler func(ctx context.Context, producerID string, body []byte) ([]byte, error)

// Gate composes signature verification with replay admission.
type Gate struct {
	verifier *signing.Verifier
	guard    *replay.Guard
	logger   logging.Logger
}

// New creates a gate over the given verifier and guard.
func New(verifier *signing.Verifier, guard *replay.Guard, logger logging.Logger) *Gate {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Gate{
		verifier: verifier,
		guard:    guard,
		logger:   logger,
	}
}

// Wrap returns an http.HandlerFunc enforcing the gate in front of the
// business handler.
//
// Authentication failures return a generic 401 without revealing which
// check failed, are never retried and never cached, so a corrected,
// re-signed retry from a legitimate sender can still succeed. Only
// signature-valid requests reach the replay guard.
func (g *Gate) Wrap(handler Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			g.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		envelope := delivery.EnvelopeFromRequest(r)
		if !envelope.Complete() {
			g.reject(w, r, errors.SignatureError("missing signature headers"))
			return
		}

		if err := g.verifier.Verify(r.Method, r.URL.Path, envelope.Timestamp, envelope.ProducerID, body, envelope.Signature); err != nil {
			g.reject(w, r, err)
			return
		}

		admission := g.guard.Admit(r.Context(), envelope.ProducerID, envelope.IdempotencyKey)

		switch admission.Outcome {
		case replay.DuplicateCompleted:
			g.logger.Debug("Serving cached result for duplicate request",
				logging.Field{Key: "producer_id", Value: envelope.ProducerID},
				logging.Field{Key: "idempotency_key", Value: envelope.IdempotencyKey},
			)
			w.Header().Set(ReplayHeader, "true")
			g.writeResult(w, http.StatusOK, admission.Result)
			return

		case replay.DuplicatePending:
			g.writeError(w, http.StatusConflict, "request is still being processed")
			return
		}

		result, err := handler(r.Context(), envelope.ProducerID, body)
		if err != nil {
			// Drop the pending record so a later retry reprocesses.
			if releaseErr := g.guard.Release(r.Context(), envelope.ProducerID, envelope.IdempotencyKey); releaseErr != nil {
				g.logger.Error("Failed to release pending replay record", releaseErr,
					logging.Field{Key: "producer_id", Value: envelope.ProducerID},
					logging.Field{Key: "idempotency_key", Value: envelope.IdempotencyKey},
				)
			}
			g.logger.Error("Business handler failed", err,
				logging.Field{Key: "producer_id", Value: envelope.ProducerID},
				logging.Field{Key: "idempotency_key", Value: envelope.IdempotencyKey},
			)
			g.writeError(w, http.StatusInternalServerError, "processing failed")
			return
		}

		if err := g.guard.Complete(r.Context(), envelope.ProducerID, envelope.IdempotencyKey, result); err != nil {
			// Already logged by the guard; the record falls back to TTL expiry.
			g.logger.Warn("Result not cached for idempotent replay",
				logging.Field{Key: "producer_id", Value: envelope.ProducerID},
				logging.Field{Key: "idempotency_key", Value: envelope.IdempotencyKey},
			)
		}

		g.writeResult(w, http.StatusOK, result)
	}
}

// reject answers all authentication failures identically so a caller
// cannot distinguish a bad signature from a stale timestamp.
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error) {
	g.logger.Warn("Rejected unauthenticated request",
		logging.Field{Key: "path", Value: r.URL.Path},
		logging.Field{Key: "remote_addr", Value: r.RemoteAddr},
		logging.Field{Key: "reason", Value: errors.GetType(err)},
	)
	g.writeError(w, http.StatusUnauthorized, "unauthorized")
}

func (g *Gate) writeResult(w http.ResponseWriter, status int, result []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(result) > 0 {
		w.Write(result)
	} else {
		w.Write([]byte(`{}`))
	}
}

func (g *Gate) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
