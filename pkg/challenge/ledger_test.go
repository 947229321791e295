package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/turnstile/pkg/cache"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(cache.NewMemoryBackend(100), time.Minute, nil)
}

func TestLedger_IssueAndConsume(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Issue(ctx, KindRegistration, "user-1", "abc", []byte(`{"k":"v"}`)))

	rec, err := ledger.Consume(ctx, KindRegistration, "user-1", "abc")
	require.NoError(t, err)
	assert.Equal(t, KindRegistration, rec.Kind)
	assert.Equal(t, "user-1", rec.Subject)
	assert.JSONEq(t, `{"k":"v"}`, string(rec.Payload))
	assert.Equal(t, time.Minute, rec.ExpiresAt.Sub(rec.IssuedAt))

	_, err = ledger.Consume(ctx, KindRegistration, "user-1", "abc")
	assert.ErrorIs(t, err, ErrChallengeMissing, "a record is consumed once")
}

func TestLedger_KindsAreSeparate(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Issue(ctx, KindRegistration, "s", "abc", nil))

	_, err := ledger.Consume(ctx, KindAuthentication, "s", "abc")
	assert.ErrorIs(t, err, ErrChallengeMissing)
}

func TestLedger_MismatchKeepsRecord(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Issue(ctx, KindRegistration, "user-1", "real", nil))

	_, err := ledger.Consume(ctx, KindRegistration, "user-1", "forged")
	assert.ErrorIs(t, err, ErrChallengeMismatch)

	_, err = ledger.Consume(ctx, KindRegistration, "user-1", "real")
	assert.NoError(t, err, "a forged attempt must not burn the legitimate ceremony")
}

func TestLedger_LastIssueWins(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Issue(ctx, KindRegistration, "user-1", "first", nil))
	require.NoError(t, ledger.Issue(ctx, KindRegistration, "user-1", "second", nil))

	_, err := ledger.Consume(ctx, KindRegistration, "user-1", "first")
	assert.ErrorIs(t, err, ErrChallengeMismatch)

	_, err = ledger.Consume(ctx, KindRegistration, "user-1", "second")
	assert.NoError(t, err)
}

func TestLedger_Expiry(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return base }
	require.NoError(t, ledger.Issue(ctx, KindAuthentication, "c", "c", nil))

	ledger.now = func() time.Time { return base.Add(time.Minute) }
	_, err := ledger.Consume(ctx, KindAuthentication, "c", "c")
	assert.ErrorIs(t, err, ErrChallengeMissing)
}

func TestLedger_IssueRequiresSubjectAndValue(t *testing.T) {
	ledger := newTestLedger(t)
	assert.Error(t, ledger.Issue(context.Background(), KindRegistration, "", "v", nil))
	assert.Error(t, ledger.Issue(context.Background(), KindRegistration, "s", "", nil))
}

func TestLedger_ConcurrentConsumers(t *testing.T) {
	backends := map[string]cache.Backend{
		"memory": cache.NewMemoryBackend(100),
	}
	mr := miniredis.RunT(t)
	redisBackend, err := cache.NewRedisBackend(context.Background(), "redis://"+mr.Addr(), "t:")
	require.NoError(t, err)
	defer redisBackend.Close()
	backends["redis"] = redisBackend

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			ledger := NewLedger(backend, time.Minute, nil)
			ctx := context.Background()
			require.NoError(t, ledger.Issue(ctx, KindAuthentication, "chal", "chal", nil))

			var wins, missing int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := ledger.Consume(ctx, KindAuthentication, "chal", "chal")
					switch {
					case err == nil:
						atomic.AddInt32(&wins, 1)
					case errors.Is(err, ErrChallengeMissing):
						atomic.AddInt32(&missing, 1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins)
			assert.Equal(t, int32(15), missing)
		})
	}
}

func TestLedger_CorruptRecord(t *testing.T) {
	backend := cache.NewMemoryBackend(100)
	ledger := NewLedger(backend, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, recordKey(KindRegistration, "u"), []byte("garbage"), time.Minute))

	_, err := ledger.Consume(ctx, KindRegistration, "u", "x")
	require.Error(t, err)

	_, err = ledger.Consume(ctx, KindRegistration, "u", "x")
	assert.ErrorIs(t, err, ErrChallengeMissing, "corrupt records are discarded")
}

func TestMemoryLedger_LoginStartsCannotEvictRegistrations(t *testing.T) {
	ledger := NewMemoryLedger(10, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, ledger.Issue(ctx, KindRegistration, "user-1", "pending", nil))
	for i := 0; i < 50; i++ {
		value := fmt.Sprintf("login-%d", i)
		require.NoError(t, ledger.Issue(ctx, KindAuthentication, value, value, nil))
	}

	_, err := ledger.Consume(ctx, KindRegistration, "user-1", "pending")
	assert.NoError(t, err)

	// Login starts still evict the oldest login starts
	_, err = ledger.Consume(ctx, KindAuthentication, "login-0", "login-0")
	assert.ErrorIs(t, err, ErrChallengeMissing)
	_, err = ledger.Consume(ctx, KindAuthentication, "login-49", "login-49")
	assert.NoError(t, err)
}

func TestLedger_WithKindBackend(t *testing.T) {
	shared := cache.NewMemoryBackend(100)
	logins := cache.NewMemoryBackend(100)
	ledger := NewLedger(shared, time.Minute, nil, WithKindBackend(KindAuthentication, logins))
	ctx := context.Background()

	require.NoError(t, ledger.Issue(ctx, KindAuthentication, "c", "c", nil))
	require.NoError(t, ledger.Issue(ctx, KindRegistration, "u", "r", nil))

	assert.Equal(t, 1, shared.Len())
	assert.Equal(t, 1, logins.Len())
	_, err := logins.Get(ctx, recordKey(KindAuthentication, "c"))
	assert.NoError(t, err)
}
