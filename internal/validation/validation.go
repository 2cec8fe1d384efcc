package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"scorelink/internal/constants"
	"scorelink/internal/errors"
)

// ValidateIdempotencyKey validates a key supplied by a client or peer
func ValidateIdempotencyKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "idempotency key cannot be empty")
	}

	if len(key) > constants.MaxIdempotencyKeyLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("idempotency key too long (max %d characters)", constants.MaxIdempotencyKeyLength))
	}

	for _, char := range key {
		if unicode.IsControl(char) {
			return errors.New(errors.ErrCodeInvalidInput, "idempotency key contains invalid characters")
		}
	}

	return nil
}

// ValidateNodeID validates a transport node identifier
func ValidateNodeID(nodeID string) error {
	if nodeID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "node ID cannot be empty")
	}

	if len(nodeID) > constants.MaxNodeIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("node ID too long (max %d characters)", constants.MaxNodeIDLength))
	}

	// Node IDs should be alphanumeric with underscores, dashes and dots
	for _, char := range nodeID {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' && char != '.' {
			return errors.New(errors.ErrCodeInvalidInput,
				"node ID must contain only letters, numbers, underscores, dashes and dots")
		}
	}

	return nil
}

// ValidatePeerURL validates a websocket URL the transport dials
func ValidatePeerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "peer URL is not a valid URL")
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New(errors.ErrCodeInvalidInput, "peer URL must use ws or wss")
	}

	if u.Host == "" {
		return errors.New(errors.ErrCodeInvalidInput, "peer URL must include a host")
	}

	return nil
}

// ValidatePhotoURI validates a photo reference attached to a stored match
func ValidatePhotoURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "photo URI cannot be empty")
	}

	if len(uri) > constants.MaxPhotoURILength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("photo URI too long (max %d characters)", constants.MaxPhotoURILength))
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return errors.New(errors.ErrCodeInvalidInput, "photo URI must be an absolute URI")
	}

	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "invalid content length")
	}

	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > 3600 { // Max 1 hour
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}

	return nil
}
