// Package canonical builds the deterministic byte form of a request's
// signable fields. The same inputs always produce byte-identical output,
// so producer and consumer can sign and verify independently.
package canonical

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"signal-relay/internal/common/errors"
)

// TimestampLayout is the wire timestamp format: RFC3339 UTC with
// microsecond precision and an explicit "Z" suffix.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// separator joins canonical fields. A newline cannot appear in an HTTP
// method, a URL path, an RFC3339 timestamp, a producer id or base64
// output, so field boundaries are unambiguous without escaping.
const separator = "\n"

// FormatTimestamp renders a time in the canonical wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a wire timestamp, accepting any valid RFC3339
// value with a "Z" (UTC) suffix.
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, errors.TimestampFormatError("timestamp is not valid RFC3339", err)
	}
	if !strings.HasSuffix(value, "Z") {
		return time.Time{}, errors.TimestampFormatError("timestamp must be UTC with Z suffix", nil)
	}
	return t, nil
}

// BodyDigest returns base64(SHA-256(body)). The digest is computed over
// the exact bytes on the wire so the codec never re-serializes the body.
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Encode builds the canonical byte sequence for the given signable
// fields. Field order is fixed: method, path, timestamp, producer id,
// body digest. Fails if the timestamp is not valid RFC3339 UTC or any
// field would break the separator invariant.
func Encode(method, path, timestamp, producerID string, body []byte) ([]byte, error) {
	if _, err := ParseTimestamp(timestamp); err != nil {
		return nil, err
	}

	for _, field := range []string{method, path, producerID} {
		if strings.Contains(field, separator) {
			return nil, errors.ValidationError("canonical field contains separator")
		}
	}

	fields := []string{method, path, timestamp, producerID, BodyDigest(body)}
	return []byte(strings.Join(fields, separator)), nil
}
