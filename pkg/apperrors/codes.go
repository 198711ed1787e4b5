package apperrors

// ErrorCode is the machine-readable error class returned to clients.
type ErrorCode string

const (
	// System
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError        ErrorCode = "DATABASE_ERROR"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// Domain taxonomy
	CodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	CodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"
	CodeCapacityExceeded   ErrorCode = "CAPACITY_EXCEEDED"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeInvalidStatus      ErrorCode = "INVALID_STATUS"

	// Auth
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	CodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	CodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
)
