package errs

import "fmt"

type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeNotFound              Code = "NOT_FOUND"
	CodeForbidden             Code = "FORBIDDEN"
	CodeDecryptionFailed      Code = "DECRYPTION_FAILED"
	CodeValidationFailed      Code = "VALIDATION_FAILED"
	CodeDependencyUnavailable Code = "DEPENDENCY_UNAVAILABLE"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Forbidden(msg string) error {
	return New(CodeForbidden, msg)
}

func DecryptionFailed(msg string, cause error) error {
	return Wrap(CodeDecryptionFailed, msg, cause)
}

func Validation(msg string) error {
	return New(CodeValidationFailed, msg)
}

func DependencyUnavailable(msg string, cause error) error {
	return Wrap(CodeDependencyUnavailable, msg, cause)
}

// CodeOf extracts the application code from an error chain. Unwrapped
// errors map to CodeUnknown, which transports treat as internal.
func CodeOf(err error) Code {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			return ae.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
