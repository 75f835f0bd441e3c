package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Error is the failure value services hand to the transport layer. Code picks
// the HTTP status and Kind is the class callers branch on.
type Error struct {
	Code    ErrorCode
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// build is the single constructor; skip counts frames above the exported caller.
func build(code ErrorCode, message string, cause error, skip int) *Error {
	return &Error{
		Code:    code,
		Kind:    code.Kind(),
		Message: message,
		Err:     cause,
		Details: make(map[string]interface{}),
		Stack:   getStack(skip + 1),
	}
}

// New creates an Error carrying the code's default message.
func New(code ErrorCode) *Error {
	return build(code, code.Message(), nil, 2)
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return build(code, fmt.Sprintf(format, args...), nil, 2)
}

// Wrap attaches a code to err. An *Error is retagged in place so its
// message and details survive.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		e.Code = code
		e.Kind = code.Kind()
		return e
	}
	return build(code, err.Error(), err, 2)
}

// Wrapf wraps err with a code and a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return build(code, fmt.Sprintf(format, args...), err, 2)
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetCode returns the code of the first *Error in err's chain, or
// InternalServerError when there is none.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalServerError
}

// GetKind returns the class recorded on the first *Error in err's chain.
// Foreign errors are internal.
func GetKind(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if stderrors.As(err, &e) {
		if e.Kind == KindNone {
			return e.Code.Kind()
		}
		return e.Kind
	}
	return KindInternal
}

// GetError returns the first *Error in err's chain, wrapping foreign errors
// as internal.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Wrap(err, InternalServerError)
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	return err != nil && stderrors.As(err, &e) && e.Code == code
}

func getStack(skip int) string {
	const maxDepth = 10
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var builder strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&builder, "\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return builder.String()
}

// BadRequest creates an InvalidParams error.
func BadRequest(msg string) *Error {
	return build(InvalidParams, msg, nil, 2)
}

// UnauthorizedError creates a not-authenticated error.
func UnauthorizedError(msg string) *Error {
	if msg == "" {
		msg = Unauthorized.Message()
	}
	return build(Unauthorized, msg, nil, 2)
}

// ForbiddenError creates a permission denied error.
func ForbiddenError(msg string) *Error {
	if msg == "" {
		msg = PermissionDenied.Message()
	}
	return build(PermissionDenied, msg, nil, 2)
}

// InternalError wraps err as InternalServerError.
func InternalError(err error) *Error {
	if err == nil {
		return build(InternalServerError, InternalServerError.Message(), nil, 2)
	}
	return Wrap(err, InternalServerError)
}

// ValidationError reports a rejected field with the reason in Details.
func ValidationError(field, reason string) *Error {
	return build(ValidationFailed, field+": "+reason, nil, 2).
		WithDetail("field", field).
		WithDetail("reason", reason)
}
