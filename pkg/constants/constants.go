package constants

// Table names
const (
	TableMutation = "sync_mutation"
	TableDevice   = "sync_device"
)

// Common field names shared between repositories and handlers
const (
	FieldID         = "id"
	FieldDeviceID   = "device_id"
	FieldEntity     = "entity"
	FieldEntityID   = "entity_id"
	FieldOperation  = "operation"
	FieldPayload    = "payload"
	FieldPriority   = "priority"
	FieldStatus     = "status"
	FieldRetryCount = "retry_count"
	FieldLastError  = "last_error"
	FieldMessage    = "message"
)

// HTTP
const (
	HeaderAuthorization = "Authorization"
	ContextKeyDevice    = "device"
	ResponseError       = "error"
)

// Queue tuning defaults. Overridable via environment where noted in config.
const (
	// MaxDeliveryAttempts is the retry ceiling after which a mutation is
	// parked as dead and never retried automatically.
	MaxDeliveryAttempts = 5

	// FlushBatchSize bounds how many mutations a single flush drains per pass.
	FlushBatchSize = 100

	// DefaultPriority applies when no priority rule matches.
	DefaultPriority = 5

	// MinPriority/MaxPriority clamp rule output and client-supplied values.
	MinPriority = 0
	MaxPriority = 9

	// ConnectivityProbeIntervalSeconds is how often the upstream health
	// endpoint is probed.
	ConnectivityProbeIntervalSeconds = 15

	// DeliveredRetentionHours is how long delivered mutations are kept
	// before the janitor purges them.
	DeliveredRetentionHours = 24
)

// SyncableEntities lists the upstream CRM collections a device may target.
// Enqueue rejects anything else.
var SyncableEntities = map[string]bool{
	"contacts":      true,
	"leads":         true,
	"opportunities": true,
	"accounts":      true,
	"tasks":         true,
	"notes":         true,
}
