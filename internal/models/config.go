package models

// Role selects which half of the protocol a node runs.
type Role string

const (
	RoleSender Role = "sender"
	RolePeer   Role = "peer"
	RoleBoth   Role = "both"
)

// Config holds the application configuration
type Config struct {
	Node      NodeConfig      `json:"node"`
	Transport TransportConfig `json:"transport"`
	Retry     RetryConfig     `json:"retry"`
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	Tracing   TracingConfig   `json:"tracing"`
	LogLevel  string          `json:"log_level"`
}

// NodeConfig identifies this node on the mesh
type NodeConfig struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// TransportConfig holds websocket link settings
type TransportConfig struct {
	Peers               []string `json:"peers"`
	AttemptTimeoutSec   int      `json:"attemptTimeoutSec"`
	HandshakeTimeoutSec int      `json:"handshakeTimeoutSec"`
	ReconnectMaxSec     int      `json:"reconnectMaxSec"`
	MaxFrameBytes       int64    `json:"maxFrameBytes"`
}

// RetryConfig holds retry scheduler settings
type RetryConfig struct {
	InitialBackoffMs int     `json:"initialBackoffMs"`
	MaxBackoffMs     int     `json:"maxBackoffMs"`
	Multiplier       float64 `json:"multiplier"`
	Jitter           *bool   `json:"jitter,omitempty"`
	TickIntervalSec  int     `json:"tickIntervalSec"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	ListenAddr        string `json:"listenAddr"`
	ReadTimeoutSec    int    `json:"readTimeoutSec"`
	WriteTimeoutSec   int    `json:"writeTimeoutSec"`
	IdleTimeoutSec    int    `json:"idleTimeoutSec"`
	TrustProxyHeaders bool   `json:"trustProxyHeaders"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

// RunsSender reports whether the sender components should be started
func (c *Config) RunsSender() bool {
	return c.Node.Role == RoleSender || c.Node.Role == RoleBoth
}

// RunsPeer reports whether the receiving components should be started
func (c *Config) RunsPeer() bool {
	return c.Node.Role == RolePeer || c.Node.Role == RoleBoth
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
