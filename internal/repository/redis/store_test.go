package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/repository"
)

func testSession(id, userID string) *domain.Session {
	return &domain.Session{
		ID:        id,
		UserID:    userID,
		Username:  "alice",
		ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second),
	}
}

func TestStore_Get(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := New(client, zerolog.Nop())

	session := testSession("s1", "u1")
	payload, err := json.Marshal(session)
	require.NoError(t, err)

	mock.ExpectGet("sentinel:session:s1").SetVal(string(payload))

	got, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetNotFound(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := New(client, zerolog.Nop())

	mock.ExpectGet("sentinel:session:missing").RedisNil()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Delete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := New(client, zerolog.Nop())

	session := testSession("s1", "u1")
	payload, err := json.Marshal(session)
	require.NoError(t, err)

	mock.ExpectGet("sentinel:session:s1").SetVal(string(payload))
	mock.ExpectDel("sentinel:session:s1").SetVal(1)
	mock.ExpectSRem("sentinel:user:u1:sessions", "s1").SetVal(1)
	mock.ExpectSRem("sentinel:sessions", "s1").SetVal(1)

	require.NoError(t, store.Delete(context.Background(), "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteNotFound(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := New(client, zerolog.Nop())

	mock.ExpectGet("sentinel:session:missing").RedisNil()

	assert.ErrorIs(t, store.Delete(context.Background(), "missing"), repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListByUser_SkipsEvicted(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := New(client, zerolog.Nop())

	live := testSession("live", "u1")
	payload, err := json.Marshal(live)
	require.NoError(t, err)

	mock.ExpectSMembers("sentinel:user:u1:sessions").SetVal([]string{"live", "evicted"})
	mock.ExpectGet("sentinel:session:live").SetVal(string(payload))
	mock.ExpectGet("sentinel:session:evicted").RedisNil()

	sessions, err := store.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "live", sessions[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SweepExpired_PrunesEvictedIndexEntries(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := New(client, zerolog.Nop())

	mock.ExpectSMembers("sentinel:sessions").SetVal([]string{"gone"})
	mock.ExpectGet("sentinel:session:gone").RedisNil()
	mock.ExpectSRem("sentinel:sessions", "gone").SetVal(1)

	removed, err := store.SweepExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SweepExpired_RemovesExpiredSessions(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := New(client, zerolog.Nop())

	expired := testSession("old", "u1")
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	payload, err := json.Marshal(expired)
	require.NoError(t, err)

	mock.ExpectSMembers("sentinel:sessions").SetVal([]string{"old"})
	mock.ExpectGet("sentinel:session:old").SetVal(string(payload))
	// Delete re-reads the session before removing it and its index entries.
	mock.ExpectGet("sentinel:session:old").SetVal(string(payload))
	mock.ExpectDel("sentinel:session:old").SetVal(1)
	mock.ExpectSRem("sentinel:user:u1:sessions", "old").SetVal(1)
	mock.ExpectSRem("sentinel:sessions", "old").SetVal(1)

	removed, err := store.SweepExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
