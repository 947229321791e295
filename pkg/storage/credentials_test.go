package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/turnstile/pkg/apperror"
	"github.com/platinummonkey/turnstile/pkg/auth"
)

func testCredential(userID string, id byte) *auth.Credential {
	return &auth.Credential{
		ID:              []byte{0xde, 0xad, id},
		UserID:          userID,
		PublicKey:       []byte{0xa5, 0x01, 0x02, id},
		AttestationType: "none",
		AAGUID:          make([]byte, 16),
		SignCount:       3,
		Transports:      []string{"internal", "hybrid"},
		BackupEligible:  true,
		BackedUp:        true,
		UserVerified:    true,
	}
}

func TestAddAndFindCredential(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := registerUser(t, store, "ada@example.com")

	cred := testCredential(user.ID, 1)
	require.NoError(t, store.AddCredential(ctx, cred))
	assert.Equal(t, auth.DeviceTypeMulti, cred.DeviceType)

	found, err := store.FindCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, cred.ID, found.ID)
	assert.Equal(t, user.ID, found.UserID)
	assert.Equal(t, cred.PublicKey, found.PublicKey)
	assert.Equal(t, uint32(3), found.SignCount)
	assert.Equal(t, []string{"internal", "hybrid"}, found.Transports)
	assert.Equal(t, auth.DeviceTypeMulti, found.DeviceType)
	assert.True(t, found.BackedUp)
	assert.True(t, found.BackupEligible)
	assert.True(t, found.UserVerified)
	assert.Len(t, found.AAGUID, 16)
	assert.Nil(t, found.LastUsedAt)
}

func TestAddCredential_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := registerUser(t, store, "ada@example.com")

	require.NoError(t, store.AddCredential(ctx, testCredential(user.ID, 1)))
	err := store.AddCredential(ctx, testCredential(user.ID, 1))
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestFindCredential_Unknown(t *testing.T) {
	store := newTestStore(t)
	_, err := store.FindCredential(context.Background(), []byte("nope"))
	assert.True(t, apperror.IsNotFound(err))
}

func TestListCredentials_InRegistrationOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := registerUser(t, store, "ada@example.com")
	other := registerUser(t, store, "bob@example.com")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := byte(0); i < 3; i++ {
		cred := testCredential(user.ID, 10-i)
		cred.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		cred.BackupEligible = false
		cred.DeviceType = ""
		require.NoError(t, store.AddCredential(ctx, cred))
	}
	require.NoError(t, store.AddCredential(ctx, testCredential(other.ID, 99)))

	creds, err := store.ListCredentials(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, creds, 3)
	assert.Equal(t, byte(10), creds[0].ID[2])
	assert.Equal(t, byte(8), creds[2].ID[2])
	assert.Equal(t, auth.DeviceTypeSingle, creds[0].DeviceType)

	none, err := store.ListCredentials(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateSignCount_CompareAndSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := registerUser(t, store, "ada@example.com")
	cred := testCredential(user.ID, 1)
	require.NoError(t, store.AddCredential(ctx, cred))

	usedAt := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	ok, err := store.UpdateSignCount(ctx, cred.ID, 3, 4, usedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateSignCount(ctx, cred.ID, 3, 5, usedAt)
	require.NoError(t, err)
	assert.False(t, ok, "stale expected counter must not apply")

	found, err := store.FindCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), found.SignCount)
	require.NotNil(t, found.LastUsedAt)
	assert.True(t, usedAt.Equal(*found.LastUsedAt))
}

func TestUpdateSignCount_ConcurrentSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := registerUser(t, store, "ada@example.com")
	cred := testCredential(user.ID, 1)
	require.NoError(t, store.AddCredential(ctx, cred))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.UpdateSignCount(ctx, cred.ID, 3, 4, time.Now())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
