package canonical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-relay/internal/common/errors"
)

func TestEncode_Deterministic(t *testing.T) {
	ts := FormatTimestamp(time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC))
	body := []byte(`{"x":1}`)

	first, err := Encode("POST", "/signals", ts, "producer-1", body)
	require.NoError(t, err)

	second, err := Encode("POST", "/signals", ts, "producer-1", body)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEncode_FieldChangesChangeOutput(t *testing.T) {
	ts := FormatTimestamp(time.Now())
	base, err := Encode("POST", "/signals", ts, "producer-1", []byte(`{"x":1}`))
	require.NoError(t, err)

	variants := []struct {
		name       string
		method     string
		path       string
		producerID string
		body       []byte
	}{
		{"method", "PUT", "/signals", "producer-1", []byte(`{"x":1}`)},
		{"path", "POST", "/webhooks/payment", "producer-1", []byte(`{"x":1}`)},
		{"producer", "POST", "/signals", "producer-2", []byte(`{"x":1}`)},
		{"body", "POST", "/signals", "producer-1", []byte(`{"x":2}`)},
	}

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			encoded, err := Encode(v.method, v.path, ts, v.producerID, v.body)
			require.NoError(t, err)
			assert.NotEqual(t, base, encoded)
		})
	}
}

func TestEncode_RejectsSeparatorInFields(t *testing.T) {
	ts := FormatTimestamp(time.Now())

	_, err := Encode("POST", "/signals\nPOST", ts, "producer-1", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestEncode_InvalidTimestamp(t *testing.T) {
	cases := []struct {
		name      string
		timestamp string
	}{
		{"garbage", "not-a-timestamp"},
		{"unix", "1700000000"},
		{"non-utc offset", "2025-03-14T09:26:53.589793+02:00"},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode("POST", "/signals", tc.timestamp, "producer-1", nil)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeTimestampFormat))
		})
	}
}

func TestFormatTimestamp_RoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	formatted := FormatTimestamp(now)

	assert.Equal(t, "2025-03-14T09:26:53.589793Z", formatted)

	parsed, err := ParseTimestamp(formatted)
	require.NoError(t, err)
	assert.True(t, now.Equal(parsed))
}

func TestFormatTimestamp_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2025, 3, 14, 11, 26, 53, 0, loc)

	formatted := FormatTimestamp(local)
	assert.Equal(t, "2025-03-14T09:26:53.000000Z", formatted)
}

func TestBodyDigest(t *testing.T) {
	t.Run("stable for identical bodies", func(t *testing.T) {
		assert.Equal(t, BodyDigest([]byte(`{"x":1}`)), BodyDigest([]byte(`{"x":1}`)))
	})

	t.Run("differs for different bodies", func(t *testing.T) {
		assert.NotEqual(t, BodyDigest([]byte(`{"x":1}`)), BodyDigest([]byte(`{"x":2}`)))
	})

	t.Run("known value for empty body", func(t *testing.T) {
		// base64 of SHA-256("")
		assert.Equal(t, "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=", BodyDigest(nil))
	})
}
