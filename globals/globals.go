package globals

const (
	ServiceName    = "deepfake-detector-api"
	ServiceVersion = "1.0.0"
)

// Context keys
type ContextKey string

const RequestIDKey ContextKey = "requestId"
const SubjectKey ContextKey = "subject"
