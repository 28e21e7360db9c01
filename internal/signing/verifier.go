package signing

import (
	"crypto/hmac"
	"fmt"
	"time"

	"signal-relay/internal/canonical"
	"signal-relay/internal/common/errors"
	"signal-relay/internal/common/logging"
)

// DefaultTolerance is the default freshness window for request timestamps.
const DefaultTolerance = 5 * time.Minute

// Verifier checks request signatures and timestamp freshness for a
// single producer identity. Verification is pure and safe for
// concurrent use.
type Verifier struct {
	signer    *Signer
	tolerance time.Duration
	logger    logging.Logger
	now       func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance overrides the freshness window.
func WithTolerance(tolerance time.Duration) VerifierOption {
	return func(v *Verifier) {
		if tolerance > 0 {
			v.tolerance = tolerance
		}
	}
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a verifier sharing the signer's secret rules.
func NewVerifier(secret []byte, logger logging.Logger, opts ...VerifierOption) (*Verifier, error) {
	signer, err := NewSigner(secret)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	v := &Verifier{
		signer:    signer,
		tolerance: DefaultTolerance,
		logger:    logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify checks the candidate signature against the canonical form of
// the given fields and enforces the freshness window. The signature
// comparison is constant time. Returns a typed authentication error on
// failure; callers must not reveal which check failed.
func (v *Verifier) Verify(method, path, timestamp, producerID string, body []byte, signature string) error {
	ts, err := canonical.ParseTimestamp(timestamp)
	if err != nil {
		return err
	}

	age := v.now().Sub(ts)
	if age < 0 {
		age = -age // future timestamps count against the window too
	}
	if age > v.tolerance {
		return errors.StaleTimestampError(
			fmt.Sprintf("timestamp outside freshness window: %v", age.Round(time.Second)))
	}

	canonicalBytes, err := canonical.Encode(method, path, timestamp, producerID, body)
	if err != nil {
		return err
	}

	expected := v.signer.Sign(canonicalBytes)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return errors.SignatureError("signature mismatch")
	}

	v.logger.Debug("Signature verified",
		logging.Field{Key: "producer_id", Value: producerID},
		logging.Field{Key: "path", Value: path},
	)

	return nil
}
