package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Authentication errors
// 13000-13999: Submission & Judge errors
// 14000-14999: Contest errors
// 16000-16999: Permission errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache & storage errors (10200-10299)
	CacheError   ErrorCode = 10200
	StorageError ErrorCode = 10201
	QueueError   ErrorCode = 10202

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

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	AlreadySubmitted       ErrorCode = 13004
	ProblemNotAssigned     ErrorCode = 13005

	// Judge (13100-13199)
	JudgeQueueFull           ErrorCode = 13100
	JudgeSystemError         ErrorCode = 13101
	ExternalJudgeUnavailable ErrorCode = 13102
	OutputLimitExceeded      ErrorCode = 13106

	// ========== Contest Errors (14000-14999) ==========

	// Rounds (14000-14099)
	RoundNotActive     ErrorCode = 14000
	RoundAlreadyActive ErrorCode = 14001
	RoundExpired       ErrorCode = 14002
	RoundMismatch      ErrorCode = 14003
	NoMoreRounds       ErrorCode = 14004
	ProblemPoolEmpty   ErrorCode = 14005

	// Participants (14100-14199)
	UserRemoved      ErrorCode = 14100
	InvalidTarget    ErrorCode = 14101
	UserNotInContest ErrorCode = 14102

	// ========== Permission Errors (16000-16999) ==========

	PermissionDenied ErrorCode = 16000
	InvalidRole      ErrorCode = 16003
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	CacheError:   "Cache operation failed",
	StorageError: "Object storage operation failed",
	QueueError:   "Message queue operation failed",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Authentication
	InvalidCredentials:    "Invalid username or password",
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	AlreadySubmitted:       "Problem already submitted",
	ProblemNotAssigned:     "No problem assigned for this round",

	// Judge
	JudgeQueueFull:           "Judge queue is full, please try again later",
	JudgeSystemError:         "Judge system error",
	ExternalJudgeUnavailable: "External judge is unavailable",
	OutputLimitExceeded:      "Output limit exceeded",

	// Contest
	RoundNotActive:     "No active round",
	RoundAlreadyActive: "A round is already active",
	RoundExpired:       "Round time is over",
	RoundMismatch:      "Submission round does not match the active round",
	NoMoreRounds:       "No more rounds available",
	ProblemPoolEmpty:   "Problem not found for round",

	UserRemoved:      "User has been removed from the contest",
	InvalidTarget:    "Invalid user",
	UserNotInContest: "User is not part of the contest",

	// Permission
	PermissionDenied: "Permission denied",
	InvalidRole:      "Invalid role",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c >= 11000 && c < 12000, c == Unauthorized:
		return 401
	case c == Forbidden, c >= 16000 && c < 17000, c == UserRemoved:
		return 403
	case c == NotFound, c == SubmissionNotFound, c == UserNotInContest:
		return 404
	case c == AlreadySubmitted, c == RoundAlreadyActive:
		return 409
	case c == TooManyRequests, c == JudgeQueueFull:
		return 429
	case c == ServiceUnavailable, c == ExternalJudgeUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400, c == InvalidParams:
		return 400
	case c >= 14000 && c < 15000, c == LanguageNotSupported, c == CodeTooLarge, c == ProblemNotAssigned:
		return 400
	default:
		return 500
	}
}
