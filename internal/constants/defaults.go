package constants

// Message paths on the transport
const (
	PathMatchFinished    = "/match_finished"
	PathMatchFinishedAck = "/match_finished_ack"
)

// Default retry scheduler values
const (
	DefaultRetryBackoffMs        = 5000
	DefaultMaxBackoffMs          = 300000
	DefaultBackoffMultiplier     = 2.0
	DefaultTickIntervalSec       = 5
	DefaultDatabaseRetryAttempts = 3
	DefaultDBRetryBackoffMs      = 50
	DefaultDBMaxBackoffMs        = 500
)

// Default transport values
const (
	DefaultAttemptTimeoutSec   = 5
	DefaultHandshakeTimeoutSec = 5
	DefaultReconnectInitialMs  = 500
	DefaultReconnectMaxSec     = 30
	DefaultMaxFrameBytes       = 256 * 1024
	DefaultAckSendTimeoutSec   = 5
)

// Default server values
const (
	DefaultListenAddr            = ":8082"
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
	DefaultMatchListLimit        = 50
	MaxMatchListLimit            = 500
)

// Validation limits
const (
	MaxIdempotencyKeyLength = 128
	MaxNodeIDLength         = 64
	MaxScoreTextLength      = 256
	MaxPhotoURILength       = 2048
)

// Privacy settings
const (
	DefaultKeyMaskLength = 8
)

// File permission constants
const (
	DefaultFilePermissions      = 0600
	DefaultDirectoryPermissions = 0750
)

// Encryption settings
const (
	EncryptionSalt          = "scorelink-pending-payload-v1"
	EnvEncryptionSecret     = "SCORELINK_ENCRYPTION_SECRET"
	EnvEnableEncryption     = "SCORELINK_ENABLE_ENCRYPTION"
	MinEncryptionSecretSize = 32
)
