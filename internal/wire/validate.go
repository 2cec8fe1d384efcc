package wire

import (
	"strings"

	"scorelink/internal/constants"
	"scorelink/internal/errors"
	"scorelink/internal/models"
)

// ValidateResult applies the receiver's acceptance rules and normalizes the optional
// set-score text. It returns a MALFORMED_PAYLOAD AppError for anything it rejects.
func ValidateResult(r models.MatchResult) (models.MatchResult, error) {
	if r.CreatedAt <= 0 {
		return r, errors.NewMalformedPayloadError("createdAt", "must be positive")
	}
	if r.DurationSeconds < 0 {
		return r, errors.NewMalformedPayloadError("durationSeconds", "must not be negative")
	}

	r.FinalScoreText = strings.TrimSpace(r.FinalScoreText)
	if r.FinalScoreText == "" {
		return r, errors.NewMalformedPayloadError("finalScoreText", "is missing")
	}
	if len(r.FinalScoreText) > constants.MaxScoreTextLength {
		return r, errors.NewMalformedPayloadError("finalScoreText", "is too long")
	}

	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return r, errors.NewMalformedPayloadError("idempotencyKey", "is missing")
	}
	if len(r.IdempotencyKey) > constants.MaxIdempotencyKeyLength {
		return r, errors.NewMalformedPayloadError("idempotencyKey", "is too long")
	}

	if r.SetScoresText != nil {
		trimmed := strings.TrimSpace(*r.SetScoresText)
		if trimmed == "" {
			r.SetScoresText = nil
		} else {
			r.SetScoresText = &trimmed
		}
	}
	if r.SetScoresText != nil && len(*r.SetScoresText) > constants.MaxScoreTextLength {
		return r, errors.NewMalformedPayloadError("setScoresText", "is too long")
	}

	return r, nil
}
