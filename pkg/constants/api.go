package constants

// HTTP and API constants
const (
	ContentTypeJSON        = "application/json"
	ContentTypeEventStream = "text/event-stream"

	// HTTP Headers
	HeaderContentType = "Content-Type"
	HeaderTenantID    = "X-Tenant-ID"
	HeaderXRequestID  = "X-Request-ID"

	// Response Keys
	ResponseError   = "error"
	ResponseSuccess = "success"
	ResponseData    = "data"
	FieldMessage    = "message"
)

// Context Keys
const (
	ContextKeyTenant = "tenant"
)

// Route parameters
const (
	ParamID      = "id"
	ParamFieldID = "fieldID"
	ParamAppID   = "appID"
)
