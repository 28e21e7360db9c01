package signing

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-relay/internal/canonical"
	"signal-relay/internal/common/errors"
	"signal-relay/internal/common/logging"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testLogger() logging.Logger {
	logger, err := logging.NewZapLogger(logging.LogConfig{
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
	if err != nil {
		panic(err)
	}
	return logger
}

func TestNewSigner_SecretLength(t *testing.T) {
	t.Run("rejects short secret", func(t *testing.T) {
		_, err := NewSigner([]byte("too-short"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})

	t.Run("accepts 16 byte secret", func(t *testing.T) {
		signer, err := NewSigner([]byte("exactly16bytes!!"))
		require.NoError(t, err)
		assert.NotNil(t, signer)
	})
}

func TestSign_Deterministic(t *testing.T) {
	signer, err := NewSigner(testSecret)
	require.NoError(t, err)

	canonicalBytes := []byte("POST\n/signals\n2025-03-14T09:26:53.000000Z\nproducer-1\ndigest")

	assert.Equal(t, signer.Sign(canonicalBytes), signer.Sign(canonicalBytes))
}

func TestVerify_RoundTrip(t *testing.T) {
	signer, err := NewSigner(testSecret)
	require.NoError(t, err)

	verifier, err := NewVerifier(testSecret, testLogger())
	require.NoError(t, err)

	body := []byte(`{"x":1}`)
	ts := canonical.FormatTimestamp(time.Now())

	canonicalBytes, err := canonical.Encode("POST", "/signals", ts, "producer-1", body)
	require.NoError(t, err)

	signature := signer.Sign(canonicalBytes)

	assert.NoError(t, verifier.Verify("POST", "/signals", ts, "producer-1", body, signature))
}

func TestVerify_Mutations(t *testing.T) {
	signer, err := NewSigner(testSecret)
	require.NoError(t, err)

	verifier, err := NewVerifier(testSecret, testLogger())
	require.NoError(t, err)

	body := []byte(`{"x":1}`)
	ts := canonical.FormatTimestamp(time.Now())

	canonicalBytes, err := canonical.Encode("POST", "/signals", ts, "producer-1", body)
	require.NoError(t, err)
	signature := signer.Sign(canonicalBytes)

	t.Run("mutated body", func(t *testing.T) {
		err := verifier.Verify("POST", "/signals", ts, "producer-1", []byte(`{"x":2}`), signature)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeSignature))
	})

	t.Run("mutated signature", func(t *testing.T) {
		mutated := []byte(signature)
		mutated[0] ^= 0x01
		err := verifier.Verify("POST", "/signals", ts, "producer-1", body, string(mutated))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeSignature))
	})

	t.Run("mutated path", func(t *testing.T) {
		err := verifier.Verify("POST", "/other", ts, "producer-1", body, signature)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeSignature))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewVerifier([]byte("another-secret-of-32-bytes-here!"), testLogger())
		require.NoError(t, err)
		verifyErr := other.Verify("POST", "/signals", ts, "producer-1", body, signature)
		assert.True(t, errors.IsType(verifyErr, errors.ErrTypeSignature))
	})
}

func TestVerify_FreshnessWindow(t *testing.T) {
	signer, err := NewSigner(testSecret)
	require.NoError(t, err)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	verifier, err := NewVerifier(testSecret, testLogger(),
		WithTolerance(5*time.Minute),
		WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	sign := func(ts string) string {
		canonicalBytes, err := canonical.Encode("POST", "/signals", ts, "producer-1", nil)
		require.NoError(t, err)
		return signer.Sign(canonicalBytes)
	}

	t.Run("within window", func(t *testing.T) {
		ts := canonical.FormatTimestamp(now.Add(-4 * time.Minute))
		assert.NoError(t, verifier.Verify("POST", "/signals", ts, "producer-1", nil, sign(ts)))
	})

	t.Run("too old, even with valid signature", func(t *testing.T) {
		ts := canonical.FormatTimestamp(now.Add(-6 * time.Minute))
		err := verifier.Verify("POST", "/signals", ts, "producer-1", nil, sign(ts))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeStaleTimestamp))
		assert.True(t, errors.IsAuthFailure(err))
	})

	t.Run("too far in the future", func(t *testing.T) {
		ts := canonical.FormatTimestamp(now.Add(6 * time.Minute))
		err := verifier.Verify("POST", "/signals", ts, "producer-1", nil, sign(ts))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeStaleTimestamp))
	})

	t.Run("malformed timestamp", func(t *testing.T) {
		err := verifier.Verify("POST", "/signals", "yesterday", "producer-1", nil, "sig")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeTimestampFormat))
		assert.True(t, errors.IsAuthFailure(err))
	})
}
