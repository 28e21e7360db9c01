// Package replay provides first-writer-wins admission bookkeeping over a
// shared TTL-expiring store, making retried inbound requests idempotent.
package replay

import (
	"context"
	"encoding/json"
	"time"

	"signal-relay/internal/common/cache"
	"signal-relay/internal/common/logging"
)

// DefaultTTL is the default replay-window TTL. It must outlive the full
// retry budget of the upstream delivery client, otherwise a legitimate
// retry would be misclassified as a fresh request.
const DefaultTTL = 600 * time.Second

// Status is the processing state of a replay record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Record is the value stored per replay key.
type Record struct {
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Outcome classifies an admission decision.
type Outcome int

const (
	// FirstArrival means the caller owns this key and must run business
	// logic, then call Complete (or Release on failure).
	FirstArrival Outcome = iota
	// DuplicatePending means another request with the same key is still
	// being processed.
	DuplicatePending
	// DuplicateCompleted means the key was already processed; the cached
	// result is returned instead of reprocessing.
	DuplicateCompleted
)

func (o Outcome) String() string {
	switch o {
	case FirstArrival:
		return "first_arrival"
	case DuplicatePending:
		return "duplicate_pending"
	case DuplicateCompleted:
		return "duplicate_completed"
	default:
		return "unknown"
	}
}

// Admission is the result of an Admit call.
type Admission struct {
	Outcome Outcome
	Result  json.RawMessage
}

// Guard performs atomic admission checks against a shared store. The
// store is an injected dependency so tests can use an in-memory cache
// and production a distributed one.
type Guard struct {
	store  cache.Cache
	ttl    time.Duration
	logger logging.Logger
}

// NewGuard creates a guard over the given store.
func NewGuard(store cache.Cache, ttl time.Duration, logger logging.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Guard{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// recordKey scopes replay keys per producer so two producers reusing the
// same idempotency key never collide.
func recordKey(producerID, key string) string {
	return producerID + ":" + key
}

// Admit atomically claims the key for the caller if it has not been seen
// within the replay window. Exactly one of any set of concurrent callers
// with the same key receives FirstArrival; the store's set-if-absent
// primitive provides the cross-process synchronization.
//
// If the store is unavailable the guard fails open: the request is
// admitted as FirstArrival and the failure is logged loudly. Duplicate
// suppression is defense in depth; signature and freshness checks remain
// the primary defense.
func (g *Guard) Admit(ctx context.Context, producerID, key string) Admission {
	record := Record{
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		g.logger.Error("Failed to marshal replay record, failing open", err,
			logging.Field{Key: "producer_id", Value: producerID},
		)
		return Admission{Outcome: FirstArrival}
	}

	storeKey := recordKey(producerID, key)

	inserted, err := g.store.SetNX(ctx, storeKey, data, g.ttl)
	if err != nil {
		g.logger.Error("Replay store unavailable, failing open", err,
			logging.Field{Key: "producer_id", Value: producerID},
			logging.Field{Key: "idempotency_key", Value: key},
		)
		return Admission{Outcome: FirstArrival}
	}

	if inserted {
		return Admission{Outcome: FirstArrival}
	}

	existing, found, err := g.store.Get(ctx, storeKey)
	if err != nil {
		g.logger.Error("Replay store unavailable on read, failing open", err,
			logging.Field{Key: "producer_id", Value: producerID},
			logging.Field{Key: "idempotency_key", Value: key},
		)
		return Admission{Outcome: FirstArrival}
	}
	if !found {
		// Record expired between SetNX and Get; treat as fresh.
		return Admission{Outcome: FirstArrival}
	}

	var prior Record
	if err := json.Unmarshal(existing, &prior); err != nil {
		g.logger.Error("Corrupt replay record, failing open", err,
			logging.Field{Key: "producer_id", Value: producerID},
			logging.Field{Key: "idempotency_key", Value: key},
		)
		return Admission{Outcome: FirstArrival}
	}

	if prior.Status == StatusCompleted {
		return Admission{Outcome: DuplicateCompleted, Result: prior.Result}
	}
	return Admission{Outcome: DuplicatePending}
}

// Complete transitions the record from pending to completed with the
// business-logic result, so later duplicates fetch the cached result
// instead of reprocessing.
func (g *Guard) Complete(ctx context.Context, producerID, key string, result json.RawMessage) error {
	now := time.Now().UTC()
	record := Record{
		Status:      StatusCompleted,
		Result:      result,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := g.store.Set(ctx, recordKey(producerID, key), data, g.ttl); err != nil {
		g.logger.Error("Failed to complete replay record", err,
			logging.Field{Key: "producer_id", Value: producerID},
			logging.Field{Key: "idempotency_key", Value: key},
		)
		return err
	}
	return nil
}

// Release drops a pending record after a business-logic failure so a
// later retry is admitted as a fresh request. A missed Release falls
// back to TTL expiry.
func (g *Guard) Release(ctx context.Context, producerID, key string) error {
	return g.store.Delete(ctx, recordKey(producerID, key))
}
