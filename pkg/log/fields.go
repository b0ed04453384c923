package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Chat
	FieldRoom      = "room"
	FieldClientID  = "client_id"
	FieldEventType = "event_type"
	FieldBlobKey   = "blob_key"

	// Service
	FieldService = "service"
)
