package constants

// Default server and retry configuration values
const (
	DefaultServerPort            = 8090
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultRetentionDays         = 0 // keep forever unless configured
	DefaultCleanupIntervalHours  = 24
	DefaultDatabaseRetryAttempts = 3
)

// Default timeout values
const (
	DefaultGatewayTimeoutSec    = 30
	DefaultAvatarTimeoutSec     = 15
	DefaultMediaDownloadSec     = 30
	DefaultGracefulShutdownSec  = 30
	DefaultServerReadTimeoutSec = 15
	DefaultServerWriteTimeout   = 15
	DefaultServerIdleTimeoutSec = 60
	DefaultRelayWriteTimeoutMs  = 2000
	ServerErrorChannelSize      = 1
)

// Default media size limits (MB)
const (
	DefaultMaxImageSizeMB    = 5
	DefaultMaxVideoSizeMB    = 100
	DefaultMaxAudioSizeMB    = 16
	DefaultMaxDocumentSizeMB = 100
)

// MaxResponseBodySize caps how much of a gateway response body is read.
const MaxResponseBodySize = 10 * 1024 * 1024

// Identity creation defaults
const (
	DefaultContactLoginPrefix = "wa_"
	DefaultContactEmailDomain = "evocrm.local"
	DefaultLifecycleTag       = "nuevo"
)

// Encryption salts. The derived key, not these values, carries the secret.
const (
	EncryptionSalt       = "evocrm-field-encryption-v1"
	EncryptionLookupSalt = "evocrm-lookup-v1"
)
