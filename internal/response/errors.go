package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// Authentication
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrEmailTaken         ErrCode = "EMAIL_ALREADY_REGISTERED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// Authorization
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrAdminAccessOnly ErrCode = "ADMIN_ACCESS_ONLY"

	// Validation
	ErrValidation ErrCode = "VALIDATION_ERROR"
	ErrInvalidID  ErrCode = "INVALID_ID"

	// Resources
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrConflict         ErrCode = "CONFLICT"
	ErrDependencyExists ErrCode = "DEPENDENCY_EXISTS"

	// Exam / attempt
	ErrExamNotFound     ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotPublished ErrCode = "EXAM_NOT_PUBLISHED"
	ErrExamNotDraft     ErrCode = "EXAM_NOT_DRAFT"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrAttemptCompleted ErrCode = "ATTEMPT_COMPLETED"
	ErrNoActiveSession  ErrCode = "NO_ACTIVE_SESSION"
	ErrResultNotFound   ErrCode = "RESULT_NOT_FOUND"

	// Rate limiting
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// Server
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrEmailTaken:
		return "An account already exists for this email."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrDependencyExists:
		return "This record is still referenced by other data."
	case ErrExamNotFound:
		return "This exam does not exist."
	case ErrExamNotPublished:
		return "This exam is not published."
	case ErrExamNotDraft:
		return "This exam is no longer a draft."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrAttemptCompleted:
		return "This exam has already been completed."
	case ErrNoActiveSession:
		return "No active exam session. Start or resume the exam first."
	case ErrResultNotFound:
		return "No result found for this exam."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
