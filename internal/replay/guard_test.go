package replay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-relay/internal/common/cache"
	"signal-relay/internal/common/logging"
)

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

func newLocalGuard(t *testing.T, ttl time.Duration) *Guard {
	t.Helper()
	store := cache.NewLocalCache(ttl, time.Minute)
	return NewGuard(store, ttl, testLogger())
}

func TestGuard_AdmitLifecycle(t *testing.T) {
	ctx := context.Background()
	guard := newLocalGuard(t, time.Minute)

	first := guard.Admit(ctx, "producer-1", "key-1")
	assert.Equal(t, FirstArrival, first.Outcome)

	pending := guard.Admit(ctx, "producer-1", "key-1")
	assert.Equal(t, DuplicatePending, pending.Outcome)

	result := json.RawMessage(`{"status":"accepted"}`)
	require.NoError(t, guard.Complete(ctx, "producer-1", "key-1", result))

	completed := guard.Admit(ctx, "producer-1", "key-1")
	assert.Equal(t, DuplicateCompleted, completed.Outcome)
	assert.JSONEq(t, `{"status":"accepted"}`, string(completed.Result))
}

func TestGuard_ConcurrentAdmissions(t *testing.T) {
	ctx := context.Background()
	guard := newLocalGuard(t, time.Minute)

	const workers = 25
	outcomes := make([]Outcome, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = guard.Admit(ctx, "producer-1", "contested").Outcome
		}(i)
	}
	wg.Wait()

	firstArrivals := 0
	for _, outcome := range outcomes {
		switch outcome {
		case FirstArrival:
			firstArrivals++
		case DuplicatePending:
		default:
			t.Fatalf("unexpected outcome %v", outcome)
		}
	}
	assert.Equal(t, 1, firstArrivals, "exactly one concurrent caller must win")
}

func TestGuard_ProducerScoping(t *testing.T) {
	ctx := context.Background()
	guard := newLocalGuard(t, time.Minute)

	a := guard.Admit(ctx, "producer-1", "shared-key")
	b := guard.Admit(ctx, "producer-2", "shared-key")

	assert.Equal(t, FirstArrival, a.Outcome)
	assert.Equal(t, FirstArrival, b.Outcome)
}

func TestGuard_Release(t *testing.T) {
	ctx := context.Background()
	guard := newLocalGuard(t, time.Minute)

	assert.Equal(t, FirstArrival, guard.Admit(ctx, "producer-1", "key-1").Outcome)
	require.NoError(t, guard.Release(ctx, "producer-1", "key-1"))

	// A released key is reprocessed as a fresh request.
	assert.Equal(t, FirstArrival, guard.Admit(ctx, "producer-1", "key-1").Outcome)
}

// failingStore simulates an unavailable shared store.
type failingStore struct{}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("store down")
}

func (f *failingStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return false, errors.New("store down")
}

func (f *failingStore) Delete(ctx context.Context, key string) error {
	return errors.New("store down")
}

func (f *failingStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, errors.New("store down")
}

func TestGuard_FailsOpenWhenStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(&failingStore{}, time.Minute, testLogger())

	// Every request is admitted rather than blocking traffic.
	assert.Equal(t, FirstArrival, guard.Admit(ctx, "producer-1", "key-1").Outcome)
	assert.Equal(t, FirstArrival, guard.Admit(ctx, "producer-1", "key-1").Outcome)
}

func TestGuard_RedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	store := cache.NewRedisCache(client, "replay:")
	guard := NewGuard(store, 600*time.Second, testLogger())

	t.Run("lifecycle over redis", func(t *testing.T) {
		assert.Equal(t, FirstArrival, guard.Admit(ctx, "producer-1", "key-1").Outcome)
		assert.Equal(t, DuplicatePending, guard.Admit(ctx, "producer-1", "key-1").Outcome)

		require.NoError(t, guard.Complete(ctx, "producer-1", "key-1", json.RawMessage(`{"ok":true}`)))

		admission := guard.Admit(ctx, "producer-1", "key-1")
		assert.Equal(t, DuplicateCompleted, admission.Outcome)
		assert.JSONEq(t, `{"ok":true}`, string(admission.Result))
	})

	t.Run("replay window expiry", func(t *testing.T) {
		assert.Equal(t, FirstArrival, guard.Admit(ctx, "producer-1", "expiring").Outcome)

		mr.FastForward(601 * time.Second)

		assert.Equal(t, FirstArrival, guard.Admit(ctx, "producer-1", "expiring").Outcome)
	})

	t.Run("cached result survives within window", func(t *testing.T) {
		assert.Equal(t, FirstArrival, guard.Admit(ctx, "producer-1", "webhook").Outcome)
		require.NoError(t, guard.Complete(ctx, "producer-1", "webhook", json.RawMessage(`{"paid":true}`)))

		// A retry five minutes later still hits the cache.
		mr.FastForward(300 * time.Second)

		admission := guard.Admit(ctx, "producer-1", "webhook")
		assert.Equal(t, DuplicateCompleted, admission.Outcome)
		assert.JSONEq(t, `{"paid":true}`, string(admission.Result))
	})
}
