package database

// Pending slot queries
const (
	SelectPendingKeyQuery = `SELECT idempotency_key FROM pending_slot WHERE slot = 1`

	UpsertPendingQuery = `
		INSERT INTO pending_slot (
			slot, idempotency_key, payload, created_at,
			attempt_count, next_retry_at, target_node_id, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET
			idempotency_key = excluded.idempotency_key,
			payload = excluded.payload,
			created_at = excluded.created_at,
			attempt_count = excluded.attempt_count,
			next_retry_at = excluded.next_retry_at,
			target_node_id = excluded.target_node_id,
			updated_at = CURRENT_TIMESTAMP
	`

	SelectPendingQuery = `
		SELECT idempotency_key, payload, created_at, attempt_count, next_retry_at, target_node_id
		FROM pending_slot
		WHERE slot = 1
	`

	DeletePendingIfKeyQuery = `DELETE FROM pending_slot WHERE slot = 1 AND idempotency_key = ?`

	DeletePendingQuery = `DELETE FROM pending_slot WHERE slot = 1`

	UpdatePendingAttemptQuery = `
		UPDATE pending_slot
		SET attempt_count = MAX(attempt_count, ?),
			next_retry_at = MAX(next_retry_at, ?),
			updated_at = CURRENT_TIMESTAMP
		WHERE slot = 1 AND idempotency_key = ?
	`

	UpdatePendingTargetQuery = `
		UPDATE pending_slot
		SET target_node_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE slot = 1 AND idempotency_key = ?
	`
)

// Match queries
const (
	InsertMatchIfNotExistsQuery = `
		INSERT INTO matches (
			created_at, duration_seconds, final_score_text, set_scores_text,
			idempotency_key, received_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING
	`

	selectMatchColumns = `
		SELECT id, created_at, duration_seconds, final_score_text, set_scores_text,
			   photo_uri, idempotency_key, received_at
		FROM matches
	`

	SelectMatchByIDQuery = selectMatchColumns + ` WHERE id = ?`

	SelectMatchByKeyQuery = selectMatchColumns + ` WHERE idempotency_key = ?`

	ListMatchesQuery = selectMatchColumns + ` ORDER BY created_at DESC, id DESC LIMIT ?`

	SelectMatchIDByKeyQuery = `SELECT id FROM matches WHERE idempotency_key = ?`

	CountMatchesByKeyQuery = `SELECT COUNT(*) FROM matches WHERE idempotency_key = ?`

	CountMatchesQuery = `SELECT COUNT(*) FROM matches`

	UpdateMatchPhotoQuery = `UPDATE matches SET photo_uri = ? WHERE id = ?`
)
