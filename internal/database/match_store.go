package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scorelink/internal/models"
)

// ErrMatchNotFound is returned by lookups that find no row.
var ErrMatchNotFound = errors.New("match not found")

// MatchStore is the peer's deduplicating store of received results. The unique
// index on idempotency_key is what enforces at-most-once persistence.
type MatchStore struct {
	db  *Database
	now func() time.Time
}

func NewMatchStore(db *Database) *MatchStore {
	return &MatchStore{db: db, now: time.Now}
}

// InsertIfNotExists persists result unless a row with the same key exists. It
// returns the row id and whether this call created it.
func (s *MatchStore) InsertIfNotExists(ctx context.Context, result models.MatchResult) (int64, bool, error) {
	var (
		id       int64
		inserted bool
	)
	err := retryableDBOperation(ctx, func() error {
		return s.db.withTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, InsertMatchIfNotExistsQuery,
				result.CreatedAt,
				result.DurationSeconds,
				result.FinalScoreText,
				result.SetScoresText,
				result.IdempotencyKey,
				s.now().UTC(),
			)
			if err != nil {
				return err
			}

			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n > 0 {
				inserted = true
				id, err = res.LastInsertId()
				return err
			}

			inserted = false
			return tx.QueryRowContext(ctx, SelectMatchIDByKeyQuery, result.IdempotencyKey).Scan(&id)
		})
	}, "insert match")
	if err != nil {
		return 0, false, err
	}
	return id, inserted, nil
}

func (s *MatchStore) GetMatch(ctx context.Context, id int64) (*models.MatchRecord, error) {
	return s.getOne(ctx, SelectMatchByIDQuery, id)
}

func (s *MatchStore) GetMatchByKey(ctx context.Context, key string) (*models.MatchRecord, error) {
	return s.getOne(ctx, SelectMatchByKeyQuery, key)
}

// ListMatches returns the newest matches first.
func (s *MatchStore) ListMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid limit %d", limit)
	}

	var out []models.MatchRecord
	err := retryableDBOperation(ctx, func() error {
		out = out[:0]
		rows, err := s.db.db.QueryContext(ctx, ListMatchesQuery, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanMatch(rows)
			if err != nil {
				return err
			}
			out = append(out, *rec)
		}
		return rows.Err()
	}, "list matches")
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountByKey reports how many rows carry key. It is at most one.
func (s *MatchStore) CountByKey(ctx context.Context, key string) (int, error) {
	var n int
	err := retryableDBOperation(ctx, func() error {
		return s.db.db.QueryRowContext(ctx, CountMatchesByKeyQuery, key).Scan(&n)
	}, "count matches by key")
	return n, err
}

func (s *MatchStore) Count(ctx context.Context) (int, error) {
	var n int
	err := retryableDBOperation(ctx, func() error {
		return s.db.db.QueryRowContext(ctx, CountMatchesQuery).Scan(&n)
	}, "count matches")
	return n, err
}

// AttachPhoto sets the photo URI of an existing match.
func (s *MatchStore) AttachPhoto(ctx context.Context, id int64, uri string) error {
	var affected int64
	err := retryableDBOperation(ctx, func() error {
		res, err := s.db.db.ExecContext(ctx, UpdateMatchPhotoQuery, nullString(uri), id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	}, "attach photo")
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMatchNotFound
	}
	return nil
}

func (s *MatchStore) getOne(ctx context.Context, query string, arg interface{}) (*models.MatchRecord, error) {
	var rec *models.MatchRecord
	err := retryableDBOperation(ctx, func() error {
		var err error
		rec, err = scanMatch(s.db.db.QueryRowContext(ctx, query, arg))
		return err
	}, "get match")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*models.MatchRecord, error) {
	var (
		rec        models.MatchRecord
		setScores  sql.NullString
		photoURI   sql.NullString
		receivedAt sql.NullTime
	)
	if err := row.Scan(
		&rec.ID,
		&rec.CreatedAt,
		&rec.DurationSeconds,
		&rec.FinalScoreText,
		&setScores,
		&photoURI,
		&rec.IdempotencyKey,
		&receivedAt,
	); err != nil {
		return nil, err
	}

	if setScores.Valid {
		rec.SetScoresText = &setScores.String
	}
	if photoURI.Valid {
		rec.PhotoURI = &photoURI.String
	}
	if receivedAt.Valid {
		rec.ReceivedAt = receivedAt.Time
	}
	return &rec, nil
}
