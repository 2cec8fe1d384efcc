package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorelink/internal/constants"
	"scorelink/internal/models"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "scorelink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("../../etc/scorelink.db")
	assert.Error(t, err)
}

func TestNew_CreatesDirectoryAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "scorelink.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestNew_EncryptionRequiresSecret(t *testing.T) {
	t.Setenv(constants.EnvEnableEncryption, "true")
	t.Setenv(constants.EnvEncryptionSecret, "")

	_, err := New(filepath.Join(t.TempDir(), "scorelink.db"))
	assert.Error(t, err)
}

func TestPendingStore_SaveAndRead(t *testing.T) {
	ctx := context.Background()
	store := NewPendingStore(setupTestDB(t))

	entry, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)

	created := time.UnixMilli(1718000000123)
	replaced, err := store.Save(ctx, models.PendingMessage{
		IdempotencyKey: "key-1",
		Payload:        []byte{0x08, 0x02},
		CreatedAt:      created,
	})
	require.NoError(t, err)
	assert.Empty(t, replaced)

	entry, err = store.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "key-1", entry.IdempotencyKey)
	assert.Equal(t, []byte{0x08, 0x02}, entry.Payload)
	assert.True(t, created.Equal(entry.CreatedAt))
	assert.Equal(t, 0, entry.AttemptCount)
	assert.True(t, entry.NextRetryAt.IsZero())
	assert.Empty(t, entry.TargetNodeID)
}

func TestPendingStore_SaveReplacesEntry(t *testing.T) {
	ctx := context.Background()
	store := NewPendingStore(setupTestDB(t))

	_, err := store.Save(ctx, models.PendingMessage{IdempotencyKey: "old", Payload: []byte("a"), CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = store.RecordAttempt(ctx, "old", 4, time.Now().Add(time.Minute))
	require.NoError(t, err)

	replaced, err := store.Save(ctx, models.PendingMessage{IdempotencyKey: "new", Payload: []byte("b"), CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "old", replaced)

	entry, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", entry.IdempotencyKey)
	assert.Equal(t, 0, entry.AttemptCount)

	// an ack for the superseded entry must not clear the new one
	cleared, err := store.ClearIfMatches(ctx, "old")
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestPendingStore_SaveRequiresKey(t *testing.T) {
	store := NewPendingStore(setupTestDB(t))
	_, err := store.Save(context.Background(), models.PendingMessage{Payload: []byte("x")})
	assert.Error(t, err)
}

func TestPendingStore_ClearIfMatches(t *testing.T) {
	ctx := context.Background()
	store := NewPendingStore(setupTestDB(t))

	cleared, err := store.ClearIfMatches(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, cleared)

	_, err = store.Save(ctx, models.PendingMessage{IdempotencyKey: "k", Payload: []byte("p"), CreatedAt: time.Now()})
	require.NoError(t, err)

	cleared, err = store.ClearIfMatches(ctx, "other")
	require.NoError(t, err)
	assert.False(t, cleared)

	cleared, err = store.ClearIfMatches(ctx, "")
	require.NoError(t, err)
	assert.False(t, cleared)

	cleared, err = store.ClearIfMatches(ctx, "k")
	require.NoError(t, err)
	assert.True(t, cleared)

	entry, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)

	// a duplicate ack after the clear is a no-op
	cleared, err = store.ClearIfMatches(ctx, "k")
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestPendingStore_RecordAttemptIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewPendingStore(setupTestDB(t))

	_, err := store.Save(ctx, models.PendingMessage{IdempotencyKey: "k", Payload: []byte("p"), CreatedAt: time.Now()})
	require.NoError(t, err)

	later := time.UnixMilli(1718000100000)
	earlier := later.Add(-time.Minute)

	ok, err := store.RecordAttempt(ctx, "k", 3, later)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.RecordAttempt(ctx, "k", 2, earlier)
	require.NoError(t, err)
	assert.True(t, ok)

	entry, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.AttemptCount)
	assert.True(t, later.Equal(entry.NextRetryAt))

	ok, err = store.RecordAttempt(ctx, "someone-else", 9, later.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingStore_UpdateTargetNode(t *testing.T) {
	ctx := context.Background()
	store := NewPendingStore(setupTestDB(t))

	ok, err := store.UpdateTargetNode(ctx, "k", "phone")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Save(ctx, models.PendingMessage{IdempotencyKey: "k", Payload: []byte("p"), CreatedAt: time.Now()})
	require.NoError(t, err)

	ok, err = store.UpdateTargetNode(ctx, "k", "phone")
	require.NoError(t, err)
	assert.True(t, ok)

	entry, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "phone", entry.TargetNodeID)
}

func TestPendingStore_Discard(t *testing.T) {
	ctx := context.Background()
	store := NewPendingStore(setupTestDB(t))

	ok, err := store.Discard(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Save(ctx, models.PendingMessage{IdempotencyKey: "k", Payload: []byte("p"), CreatedAt: time.Now()})
	require.NoError(t, err)

	ok, err = store.Discard(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPendingStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scorelink.db")

	db, err := New(path)
	require.NoError(t, err)
	_, err = NewPendingStore(db).Save(ctx, models.PendingMessage{IdempotencyKey: "k", Payload: []byte("p"), CreatedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	entry, err := NewPendingStore(db).Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "k", entry.IdempotencyKey)
}

func TestPendingStore_ConcurrentClearAndAttempt(t *testing.T) {
	ctx := context.Background()
	store := NewPendingStore(setupTestDB(t))

	_, err := store.Save(ctx, models.PendingMessage{IdempotencyKey: "k", Payload: []byte("p"), CreatedAt: time.Now()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_, _ = store.RecordAttempt(ctx, "k", n, time.Now().Add(time.Duration(n)*time.Second))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.ClearIfMatches(ctx, "k")
		}()
	}
	wg.Wait()

	entry, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestPendingStore_EncryptedPayload(t *testing.T) {
	t.Setenv(constants.EnvEnableEncryption, "true")
	t.Setenv(constants.EnvEncryptionSecret, "0123456789abcdef0123456789abcdef")

	ctx := context.Background()
	db := setupTestDB(t)
	store := NewPendingStore(db)

	_, err := store.Save(ctx, models.PendingMessage{IdempotencyKey: "k", Payload: []byte("plain payload"), CreatedAt: time.Now()})
	require.NoError(t, err)

	var raw []byte
	require.NoError(t, db.db.QueryRow(`SELECT payload FROM pending_slot`).Scan(&raw))
	assert.NotContains(t, string(raw), "plain payload")

	entry, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain payload"), entry.Payload)
}

func TestMatchStore_InsertIfNotExists(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore(setupTestDB(t))
	fixed := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	result := models.MatchResult{
		CreatedAt:       1718000000000,
		DurationSeconds: 3600,
		FinalScoreText:  "2-1",
		SetScoresText:   strPtr("6-4 3-6 7-5"),
		IdempotencyKey:  "k-1",
	}

	id, inserted, err := store.InsertIfNotExists(ctx, result)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Positive(t, id)

	dupID, inserted, err := store.InsertIfNotExists(ctx, result)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id, dupID)

	n, err := store.CountByKey(ctx, "k-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := store.GetMatchByKey(ctx, "k-1")
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "2-1", rec.FinalScoreText)
	require.NotNil(t, rec.SetScoresText)
	assert.Equal(t, "6-4 3-6 7-5", *rec.SetScoresText)
	assert.Nil(t, rec.PhotoURI)
	assert.True(t, fixed.Equal(rec.ReceivedAt))
}

func TestMatchStore_DuplicateDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore(setupTestDB(t))

	first := models.MatchResult{CreatedAt: 1, DurationSeconds: 1, FinalScoreText: "1-0", IdempotencyKey: "k"}
	id, _, err := store.InsertIfNotExists(ctx, first)
	require.NoError(t, err)
	require.NoError(t, store.AttachPhoto(ctx, id, "content://photos/1"))

	second := first
	second.FinalScoreText = "9-9"
	_, inserted, err := store.InsertIfNotExists(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, err := store.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1-0", rec.FinalScoreText)
	require.NotNil(t, rec.PhotoURI)
	assert.Equal(t, "content://photos/1", *rec.PhotoURI)
}

func TestMatchStore_ConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore(setupTestDB(t))
	result := models.MatchResult{CreatedAt: 1, DurationSeconds: 1, FinalScoreText: "1-0", IdempotencyKey: "race"}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		ids      = map[int64]struct{}{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok, err := store.InsertIfNotExists(ctx, result)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[id] = struct{}{}
			if ok {
				inserted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Len(t, ids, 1)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMatchStore_ListMatches(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore(setupTestDB(t))

	for i, key := range []string{"a", "b", "c"} {
		_, _, err := store.InsertIfNotExists(ctx, models.MatchResult{
			CreatedAt: int64(100 + i), DurationSeconds: 1, FinalScoreText: "1-0", IdempotencyKey: key,
		})
		require.NoError(t, err)
	}

	list, err := store.ListMatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].IdempotencyKey)
	assert.Equal(t, "b", list[1].IdempotencyKey)

	_, err = store.ListMatches(ctx, 0)
	assert.Error(t, err)
}

func TestMatchStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore(setupTestDB(t))

	_, err := store.GetMatch(ctx, 42)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	_, err = store.GetMatchByKey(ctx, "nope")
	assert.ErrorIs(t, err, ErrMatchNotFound)

	assert.ErrorIs(t, store.AttachPhoto(ctx, 42, "x"), ErrMatchNotFound)
}
