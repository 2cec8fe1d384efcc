package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"scorelink/internal/constants"
	"scorelink/internal/database"
	"scorelink/internal/errors"
	"scorelink/internal/models"
	"scorelink/internal/validation"
	"scorelink/internal/wire"

	"github.com/gorilla/mux"
)

const maxRequestBytes = 64 * 1024

// resultSender is the sender-side API the server exposes
type resultSender interface {
	FinishMatch(ctx context.Context, result models.MatchResult) (*models.PendingMessage, error)
	Pending(ctx context.Context) (*models.PendingMessage, error)
	Discard(ctx context.Context) (bool, error)
	Status() models.DeliveryStatus
}

// matchStore is the peer-side API the server exposes
type matchStore interface {
	GetMatch(ctx context.Context, id int64) (*models.MatchRecord, error)
	GetMatchByKey(ctx context.Context, key string) (*models.MatchRecord, error)
	ListMatches(ctx context.Context, limit int) ([]models.MatchRecord, error)
	AttachPhoto(ctx context.Context, id int64, uri string) error
}

type finishMatchRequest struct {
	CreatedAt       int64   `json:"createdAt"`
	DurationSeconds int64   `json:"durationSeconds"`
	FinalScoreText  string  `json:"finalScoreText"`
	SetScoresText   *string `json:"setScoresText,omitempty"`
}

type pendingResponse struct {
	IdempotencyKey string              `json:"idempotencyKey"`
	CreatedAt      time.Time           `json:"createdAt"`
	AttemptCount   int                 `json:"attemptCount"`
	NextRetryAt    *time.Time          `json:"nextRetryAt,omitempty"`
	TargetNodeID   string              `json:"targetNodeId,omitempty"`
	Result         *models.MatchResult `json:"result,omitempty"`
}

type attachPhotoRequest struct {
	PhotoURI string `json:"photoUri"`
}

func (s *Server) handleFinishMatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, maxRequestBytes); err != nil {
			s.writeError(w, r, err)
			return
		}

		var req finishMatchRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			s.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "request body is not a valid result"))
			return
		}

		entry, err := s.sender.FinishMatch(r.Context(), models.MatchResult{
			CreatedAt:       req.CreatedAt,
			DurationSeconds: req.DurationSeconds,
			FinalScoreText:  req.FinalScoreText,
			SetScoresText:   req.SetScoresText,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, r, http.StatusAccepted, toPendingResponse(entry))
	}
}

func (s *Server) handleGetPending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := s.sender.Pending(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if entry == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeJSON(w, r, http.StatusOK, toPendingResponse(entry))
	}
}

func (s *Server) handleDiscardPending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		discarded, err := s.sender.Discard(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, map[string]bool{"discarded": discarded})
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, s.sender.Status())
	}
}

// handleListMatches lists the newest matches. With ?key= it answers whether that
// idempotency key was stored, as a list of zero or one match.
func (s *Server) handleListMatches() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := r.URL.Query().Get("key"); key != "" {
			s.matchesByKey(w, r, key)
			return
		}

		limit := constants.DefaultMatchListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				s.writeError(w, r, errors.NewValidationError("limit", raw, "limit must be a number"))
				return
			}
			if err := validation.ValidateNumericRange(n, "limit", 1, constants.MaxMatchListLimit); err != nil {
				s.writeError(w, r, err)
				return
			}
			limit = n
		}

		matches, err := s.matches.ListMatches(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, errors.NewDatabaseError("list matches", err))
			return
		}
		if matches == nil {
			matches = []models.MatchRecord{}
		}
		s.writeJSON(w, r, http.StatusOK, matches)
	}
}

func (s *Server) matchesByKey(w http.ResponseWriter, r *http.Request, key string) {
	if err := validation.ValidateIdempotencyKey(key); err != nil {
		s.writeError(w, r, err)
		return
	}

	match, err := s.matches.GetMatchByKey(r.Context(), key)
	switch {
	case stderrors.Is(err, database.ErrMatchNotFound):
		s.writeJSON(w, r, http.StatusOK, []models.MatchRecord{})
	case err != nil:
		s.writeError(w, r, errors.NewDatabaseError("get match by key", err))
	default:
		s.writeJSON(w, r, http.StatusOK, []models.MatchRecord{*match})
	}
}

func (s *Server) handleGetMatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := matchID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		match, err := s.matches.GetMatch(r.Context(), id)
		if err != nil {
			s.writeError(w, r, matchLookupError(err, id))
			return
		}
		s.writeJSON(w, r, http.StatusOK, match)
	}
}

func (s *Server) handleAttachPhoto() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := matchID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var req attachPhotoRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			s.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "request body is not valid JSON"))
			return
		}
		if err := validation.ValidatePhotoURI(req.PhotoURI); err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.matches.AttachPhoto(r.Context(), id, req.PhotoURI); err != nil {
			s.writeError(w, r, matchLookupError(err, id))
			return
		}

		match, err := s.matches.GetMatch(r.Context(), id)
		if err != nil {
			s.writeError(w, r, matchLookupError(err, id))
			return
		}
		s.writeJSON(w, r, http.StatusOK, match)
	}
}

func matchID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError("id", raw, "match id must be a positive number")
	}
	return id, nil
}

func matchLookupError(err error, id int64) error {
	if stderrors.Is(err, database.ErrMatchNotFound) {
		return errors.NewNotFoundError("match", strconv.FormatInt(id, 10))
	}
	return errors.NewDatabaseError("get match", err)
}

func toPendingResponse(entry *models.PendingMessage) pendingResponse {
	resp := pendingResponse{
		IdempotencyKey: entry.IdempotencyKey,
		CreatedAt:      entry.CreatedAt,
		AttemptCount:   entry.AttemptCount,
		TargetNodeID:   entry.TargetNodeID,
	}
	if !entry.NextRetryAt.IsZero() {
		next := entry.NextRetryAt
		resp.NextRetryAt = &next
	}
	if result, err := wire.DecodeResult(entry.Payload); err == nil {
		resp.Result = &result
	}
	return resp
}
