package models

import "time"

// MatchResult is the producer's finalized result as carried on the wire.
type MatchResult struct {
	CreatedAt       int64   `json:"createdAt"`
	DurationSeconds int64   `json:"durationSeconds"`
	FinalScoreText  string  `json:"finalScoreText"`
	SetScoresText   *string `json:"setScoresText,omitempty"`
	IdempotencyKey  string  `json:"idempotencyKey"`
}

// MatchRecord is a result persisted by the peer. At most one exists per IdempotencyKey.
type MatchRecord struct {
	ID              int64     `db:"id" json:"id"`
	CreatedAt       int64     `db:"created_at" json:"createdAt"`
	DurationSeconds int64     `db:"duration_seconds" json:"durationSeconds"`
	FinalScoreText  string    `db:"final_score_text" json:"finalScoreText"`
	SetScoresText   *string   `db:"set_scores_text" json:"setScoresText,omitempty"`
	PhotoURI        *string   `db:"photo_uri" json:"photoUri,omitempty"`
	IdempotencyKey  string    `db:"idempotency_key" json:"idempotencyKey"`
	ReceivedAt      time.Time `db:"received_at" json:"receivedAt"`
}
