// Package delivery sends signed signal payloads to a consumer endpoint,
// retrying transient failures with fresh signatures per attempt.
package delivery

import (
	"net/http"
)

// Wire header names carried on every signed request. Both sides of the
// wire agree on these; the gate reads the same names the client writes.
const (
	HeaderProducerID     = "X-Producer-Id"
	HeaderTimestamp      = "X-Signal-Timestamp"
	HeaderSignature      = "X-Signal-Signature"
	HeaderIdempotencyKey = "X-Idempotency-Key"
)

// Envelope is one delivery attempt's wire form. Timestamp and Signature
// are regenerated on every retry; IdempotencyKey stays stable across
// retries of the same logical delivery.
type Envelope struct {
	ProducerID     string
	Timestamp      string
	Signature      string
	IdempotencyKey string
	Body           []byte
}

// Apply sets the envelope headers on an outbound request.
func (e *Envelope) Apply(req *http.Request) {
	req.Header.Set(HeaderProducerID, e.ProducerID)
	req.Header.Set(HeaderTimestamp, e.Timestamp)
	req.Header.Set(HeaderSignature, e.Signature)
	req.Header.Set(HeaderIdempotencyKey, e.IdempotencyKey)
	req.Header.Set("Content-Type", "application/json")
}

// EnvelopeFromRequest extracts the wire headers from an inbound request.
// The body is not read here; the caller owns body handling.
func EnvelopeFromRequest(r *http.Request) Envelope {
	return Envelope{
		ProducerID:     r.Header.Get(HeaderProducerID),
		Timestamp:      r.Header.Get(HeaderTimestamp),
		Signature:      r.Header.Get(HeaderSignature),
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	}
}

// Complete reports whether all required headers are present.
func (e *Envelope) Complete() bool {
	return e.ProducerID != "" && e.Timestamp != "" && e.Signature != "" && e.IdempotencyKey != ""
}
