package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"scorelink/internal/httputil"
	"scorelink/internal/service"
	"scorelink/internal/tracing"

	"github.com/sirupsen/logrus"
)

// DetailedLoggingConfig controls what gets logged
type DetailedLoggingConfig struct {
	LogRequestHeaders bool
	LogRequestBody    bool
	LogResponseBody   bool
	MaxBodySize       int
	SensitiveHeaders  []string
	SkipPaths         []string
	TrustProxyHeaders bool
}

// DefaultDetailedLoggingConfig logs headers only and skips the websocket and scrape endpoints
func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		MaxBodySize:       1024,
		SensitiveHeaders:  []string{"authorization", "cookie", "set-cookie", "x-api-key"},
		SkipPaths:         []string{"/ws", "/metrics", "/health"},
	}
}

// DetailedLogging writes request and response details at debug level. It is
// meant for -verbose runs and never wraps skipped paths.
func DetailedLogging(logger *logrus.Logger, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range config.SkipPaths {
				if r.URL.Path == skip {
					next.ServeHTTP(w, r)
					return
				}
			}

			requestID := tracing.GetRequestID(r.Context())
			logRequestDetails(logger, r, requestID, config)

			if !config.LogResponseBody {
				next.ServeHTTP(w, r)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			fields := logrus.Fields{
				service.LogFieldRequestID:  requestID,
				service.LogFieldStatusCode: capture.statusCode,
				service.LogFieldSize:       capture.body.Len(),
			}
			if capture.body.Len() <= config.MaxBodySize {
				fields["response_body"] = capture.body.String()
			} else {
				fields["response_body"] = fmt.Sprintf("***TRUNCATED*** (size: %d bytes)", capture.body.Len())
			}
			logger.WithFields(fields).Debug("Detailed response logging")
		})
	}
}

func logRequestDetails(logger *logrus.Logger, r *http.Request, requestID string, config DetailedLoggingConfig) {
	fields := logrus.Fields{
		service.LogFieldRequestID: requestID,
		service.LogFieldMethod:    r.Method,
		service.LogFieldURL:       r.URL.String(),
		service.LogFieldRemoteIP:  httputil.ClientIP(r, config.TrustProxyHeaders),
		"content_length":          r.ContentLength,
	}

	if config.LogRequestHeaders {
		headers := make(map[string]string, len(r.Header))
		for name, values := range r.Header {
			if isSensitiveHeader(name, config.SensitiveHeaders) {
				headers[name] = "***MASKED***"
			} else {
				headers[name] = strings.Join(values, ", ")
			}
		}
		fields["request_headers"] = headers
	}

	if config.LogRequestBody && strings.Contains(r.Header.Get("Content-Type"), "application/json") &&
		r.ContentLength > 0 && r.ContentLength <= int64(config.MaxBodySize) {
		body, err := io.ReadAll(r.Body)
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			fields["request_body"] = string(body)
		}
	}

	logger.WithFields(fields).Debug("Detailed request logging")
}

type responseCapture struct {
	http.ResponseWriter
	body       bytes.Buffer
	statusCode int
}

func (rc *responseCapture) Write(data []byte) (int, error) {
	n, err := rc.ResponseWriter.Write(data)
	rc.body.Write(data[:n])
	return n, err
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func isSensitiveHeader(headerName string, sensitiveHeaders []string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(sensitive, headerName) {
			return true
		}
	}
	return false
}
