package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"scorelink/internal/constants"
	"scorelink/internal/models"
	"scorelink/internal/security"
	"scorelink/internal/validation"
)

var (
	ErrMissingNodeID = models.ConfigError{Message: "missing node id"}
	ErrMissingDBPath = models.ConfigError{Message: "missing database path"}
	ErrInvalidRole   = models.ConfigError{Message: "node role must be one of sender, peer, both"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	// Overrides come first so a container can supply required values
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Node.ID == "" {
		return ErrMissingNodeID
	}
	if err := validation.ValidateNodeID(c.Node.ID); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid node id: %v", err)}
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	switch c.Node.Role {
	case "":
		c.Node.Role = models.RoleBoth
	case models.RoleSender, models.RolePeer, models.RoleBoth:
	default:
		return ErrInvalidRole
	}

	seen := make(map[string]bool)
	for i, peer := range c.Transport.Peers {
		if err := validation.ValidatePeerURL(peer); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid peer %d: %v", i, err)}
		}
		if seen[peer] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate peer: %s", peer)}
		}
		seen[peer] = true
	}

	// Transport defaults
	if c.Transport.AttemptTimeoutSec <= 0 {
		c.Transport.AttemptTimeoutSec = constants.DefaultAttemptTimeoutSec
	}
	if c.Transport.HandshakeTimeoutSec <= 0 {
		c.Transport.HandshakeTimeoutSec = constants.DefaultHandshakeTimeoutSec
	}
	if c.Transport.ReconnectMaxSec <= 0 {
		c.Transport.ReconnectMaxSec = constants.DefaultReconnectMaxSec
	}
	if c.Transport.MaxFrameBytes <= 0 {
		c.Transport.MaxFrameBytes = constants.DefaultMaxFrameBytes
	}
	if err := validation.ValidateTimeout(c.Transport.AttemptTimeoutSec, "attempt timeout"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	// Retry defaults
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		return models.ConfigError{Message: "retry maxBackoffMs must not be less than initialBackoffMs"}
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = constants.DefaultBackoffMultiplier
	}
	if c.Retry.Multiplier < 1 {
		return models.ConfigError{Message: "retry multiplier must be at least 1"}
	}
	if c.Retry.Jitter == nil {
		jitter := true
		c.Retry.Jitter = &jitter
	}
	if c.Retry.TickIntervalSec <= 0 {
		c.Retry.TickIntervalSec = constants.DefaultTickIntervalSec
	}

	// Server defaults
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = constants.DefaultListenAddr
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "scorelink"
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sampleRate must be between 0 and 1"}
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if id := os.Getenv("SCORELINK_NODE_ID"); id != "" {
		c.Node.ID = id
	}
	if role := os.Getenv("SCORELINK_ROLE"); role != "" {
		c.Node.Role = models.Role(role)
	}
	if path := os.Getenv("SCORELINK_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if addr := os.Getenv("SCORELINK_LISTEN_ADDR"); addr != "" {
		c.Server.ListenAddr = addr
	}
	if level := os.Getenv("SCORELINK_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	// Comma separated list replacing the configured peers
	if peers := os.Getenv("SCORELINK_PEERS"); peers != "" {
		c.Transport.Peers = c.Transport.Peers[:0]
		for _, p := range strings.Split(peers, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Transport.Peers = append(c.Transport.Peers, p)
			}
		}
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("SCORELINK_ENV") == "production"

	if isProduction {
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
		for _, peer := range c.Transport.Peers {
			if strings.HasPrefix(peer, "ws://") {
				return models.ConfigError{Message: fmt.Sprintf("peer %s must use wss in production", peer)}
			}
		}
	} else if os.Getenv(constants.EnvEnableEncryption) != "true" {
		fmt.Fprintf(os.Stderr, "WARNING: pending payload encryption is disabled. Set %s=true and %s for encryption at rest.\n",
			constants.EnvEnableEncryption, constants.EnvEncryptionSecret)
	}

	return nil
}
