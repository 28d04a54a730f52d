package bridge

// Method is a bridge method identifier used in JSON-RPC messages.
type Method string

const (
	// Lifecycle
	InitializeMethod Method = "initialize"
	ShutdownMethod   Method = "shutdown"

	// Domain
	QueryMethod Method = "asr_got.query"

	// Notifications (no id, never answered)
	CancelledNotificationMethod Method = "notifications/cancelled"
)
