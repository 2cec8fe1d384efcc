package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"scorelink/internal/models"
)

// PendingStore is the sender's single durable slot. Every operation holds one mutex
// and runs in its own transaction, so a clear and an attempt update never interleave.
// No network I/O happens while the mutex is held.
type PendingStore struct {
	mu sync.Mutex
	db *Database
}

func NewPendingStore(db *Database) *PendingStore {
	return &PendingStore{db: db}
}

// Save writes entry into the slot, replacing whatever was there. It returns the key
// of the replaced entry, or "" when the slot was empty.
func (s *PendingStore) Save(ctx context.Context, entry models.PendingMessage) (string, error) {
	if entry.IdempotencyKey == "" {
		return "", fmt.Errorf("pending entry has no idempotency key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.db.encryptor.Seal(entry.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt payload: %w", err)
	}

	var replaced string
	err = retryableDBOperation(ctx, func() error {
		replaced = ""
		return s.db.withTx(ctx, func(tx *sql.Tx) error {
			var prev string
			switch err := tx.QueryRowContext(ctx, SelectPendingKeyQuery).Scan(&prev); {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return err
			default:
				if prev != entry.IdempotencyKey {
					replaced = prev
				}
			}

			_, err := tx.ExecContext(ctx, UpsertPendingQuery,
				entry.IdempotencyKey,
				payload,
				toMillis(entry.CreatedAt),
				entry.AttemptCount,
				toMillis(entry.NextRetryAt),
				nullString(entry.TargetNodeID),
			)
			return err
		})
	}, "save pending entry")
	if err != nil {
		return "", err
	}
	return replaced, nil
}

// Read returns the current entry, or nil when the slot is empty.
func (s *PendingStore) Read(ctx context.Context) (*models.PendingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		entry       models.PendingMessage
		sealed      []byte
		createdAt   int64
		nextRetryAt int64
		target      sql.NullString
		found       bool
	)
	err := retryableDBOperation(ctx, func() error {
		err := s.db.db.QueryRowContext(ctx, SelectPendingQuery).Scan(
			&entry.IdempotencyKey, &sealed, &createdAt, &entry.AttemptCount, &nextRetryAt, &target,
		)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		found = err == nil
		return err
	}, "read pending entry")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	entry.Payload, err = s.db.encryptor.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt pending payload: %w", err)
	}
	entry.CreatedAt = fromMillis(createdAt)
	entry.NextRetryAt = fromMillis(nextRetryAt)
	entry.TargetNodeID = target.String
	return &entry, nil
}

// ClearIfMatches empties the slot only if it still holds key.
func (s *PendingStore) ClearIfMatches(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	return s.execGuarded(ctx, "clear pending entry", DeletePendingIfKeyQuery, key)
}

// RecordAttempt stores attempt bookkeeping for key. Neither the attempt count nor
// next_retry_at ever moves backwards.
func (s *PendingStore) RecordAttempt(ctx context.Context, key string, attemptCount int, nextRetryAt time.Time) (bool, error) {
	return s.execGuarded(ctx, "record attempt", UpdatePendingAttemptQuery, attemptCount, toMillis(nextRetryAt), key)
}

// UpdateTargetNode remembers which node the last attempt went to.
func (s *PendingStore) UpdateTargetNode(ctx context.Context, key, nodeID string) (bool, error) {
	return s.execGuarded(ctx, "update target node", UpdatePendingTargetQuery, nullString(nodeID), key)
}

// Discard empties the slot regardless of key.
func (s *PendingStore) Discard(ctx context.Context) (bool, error) {
	return s.execGuarded(ctx, "discard pending entry", DeletePendingQuery)
}

func (s *PendingStore) execGuarded(ctx context.Context, name, query string, args ...interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	err := retryableDBOperation(ctx, func() error {
		return s.db.withTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			affected, err = res.RowsAffected()
			return err
		})
	}, name)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
