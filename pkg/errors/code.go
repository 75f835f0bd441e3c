package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Authentication errors
// 12000-12999: Problem module errors
// 13000-13999: Incident boundary errors
// 14000-14999: Directory (employee / user account) errors
// 16000-16999: Permission errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103
	DependencyConflict  ErrorCode = 10104
	DatabaseTimeout     ErrorCode = 10105
	DatabaseUnavailable ErrorCode = 10106

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Authentication Errors (11000-11999) ==========

	InvalidCredentials    ErrorCode = 11000
	TokenExpired          ErrorCode = 11003
	TokenInvalid          ErrorCode = 11004
	TokenGenerationFailed ErrorCode = 11005
	AccountDisabled       ErrorCode = 11203

	// ========== Problem Module Errors (12000-12999) ==========

	// Problem basic (12000-12099)
	ProblemNotFound     ErrorCode = 12000
	ProblemCreateFailed ErrorCode = 12002
	ProblemUpdateFailed ErrorCode = 12003
	ProblemDeleteFailed ErrorCode = 12004
	InvalidStatus       ErrorCode = 12005

	// Relations (12100-12199)
	IncidentLinkFailed   ErrorCode = 12100
	IncidentUnlinkFailed ErrorCode = 12101
	CommentCreateFailed  ErrorCode = 12102
	SolutionCreateFailed ErrorCode = 12103
	InvalidSolutionType  ErrorCode = 12104

	// ========== Incident Boundary Errors (13000-13999) ==========

	IncidentNotFound ErrorCode = 13000

	// ========== Directory Errors (14000-14999) ==========

	AccountNotFound      ErrorCode = 14000
	AccountAlreadyExists ErrorCode = 14001
	AccountCreateFailed  ErrorCode = 14002
	AccountDeleteFailed  ErrorCode = 14003

	// ========== Permission Errors (16000-16999) ==========

	PermissionDenied ErrorCode = 16000
)

// errorMessages maps error codes to default messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Not authenticated",
	Forbidden:           "Access forbidden",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database error",
	RecordNotFound:      "Record not found",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Transaction failed",
	DependencyConflict:  "Resource has dependent records",
	DatabaseTimeout:     "Database request timed out, please retry",
	DatabaseUnavailable: "Database temporarily unavailable, please retry",

	// Cache
	CacheError: "Cache error",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Authentication
	InvalidCredentials:    "Invalid username or password",
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",
	AccountDisabled:       "Account is disabled",

	// Problem
	ProblemNotFound:     "Problem not found",
	ProblemCreateFailed: "Failed to create problem",
	ProblemUpdateFailed: "Failed to update problem",
	ProblemDeleteFailed: "Failed to delete problem",
	InvalidStatus:       "Invalid problem status",

	// Relations
	IncidentLinkFailed:   "Failed to link incident",
	IncidentUnlinkFailed: "Failed to unlink incident",
	CommentCreateFailed:  "Failed to add comment",
	SolutionCreateFailed: "Failed to add proposed solution",
	InvalidSolutionType:  "Invalid solution type",

	// Incident
	IncidentNotFound: "Incident not found",

	// Directory
	AccountNotFound:      "Account not found",
	AccountAlreadyExists: "Username already exists",
	AccountCreateFailed:  "Failed to create account",
	AccountDeleteFailed:  "Failed to delete account",

	// Permission
	PermissionDenied: "Permission denied",
}

// Message returns the default message for an error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the appropriate HTTP status code for an error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c >= 11000 && c < 12000: // Authentication errors
		return 401
	case c == Unauthorized:
		return 401
	case c == Forbidden, c >= 16000 && c < 17000: // Permission errors
		return 403
	case c == NotFound, c == RecordNotFound, c == ProblemNotFound, c == IncidentNotFound, c == AccountNotFound:
		return 404
	case c == DependencyConflict, c == RecordAlreadyExists, c == AccountAlreadyExists:
		return 409
	case c == ServiceUnavailable, c == DatabaseUnavailable:
		return 503
	case c == Timeout, c == DatabaseTimeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == InvalidStatus, c == InvalidSolutionType:
		return 400
	default:
		return 500
	}
}

// Kind groups error codes into the classes callers branch on.
type Kind string

const (
	KindNone               Kind = ""
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindAuthorization      Kind = "authorization"
	KindDependencyConflict Kind = "dependency_conflict"
	KindTransient          Kind = "transient"
	KindInternal           Kind = "internal"
)

// Kind returns the error class of the code.
func (c ErrorCode) Kind() Kind {
	switch c.HTTPStatus() {
	case 200:
		return KindNone
	case 400:
		return KindValidation
	case 401, 403:
		return KindAuthorization
	case 404:
		return KindNotFound
	case 409:
		return KindDependencyConflict
	case 503, 504:
		return KindTransient
	default:
		return KindInternal
	}
}
