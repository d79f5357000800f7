package message

import (
	"encoding/json"
	"errors"

	"github.com/brianly1003/flocksync/internal/domain"
)

// Standard JSON-RPC 2.0 error codes.
const (
	// ParseError indicates invalid JSON was received.
	ParseError = -32700

	// InvalidRequest indicates the JSON is not a valid Request object.
	InvalidRequest = -32600

	// MethodNotFound indicates the method does not exist.
	MethodNotFound = -32601

	// InvalidParams indicates invalid method parameters.
	InvalidParams = -32602

	// InternalError indicates an internal JSON-RPC error.
	InternalError = -32603
)

// Tree server error codes (-32010 to -32029).
const (
	NotFound           = -32010
	NotAuthenticated   = -32011
	InvalidCredentials = -32012
	EmailInUse         = -32013
	WeakPassword       = -32014

	InvalidPayload = -32020
)

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the domain error the code stands for, so callers on the
// client side can match with errors.Is.
func (e *Error) Unwrap() error {
	switch e.Code {
	case NotFound:
		return domain.ErrNotFound
	case NotAuthenticated:
		return domain.ErrNotAuthenticated
	case InvalidCredentials:
		return domain.ErrInvalidCredentials
	case EmailInUse:
		return domain.ErrEmailInUse
	case WeakPassword:
		return domain.ErrWeakPassword
	case InvalidPayload, InvalidParams:
		return domain.ErrInvalidPayload
	default:
		return nil
	}
}

// NewError creates a new JSON-RPC error.
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithData creates a new JSON-RPC error with additional data.
func NewErrorWithData(code int, message string, data any) *Error {
	err := NewError(code, message)
	if data != nil {
		if d, e := json.Marshal(data); e == nil {
			err.Data = d
		}
	}
	return err
}

// ErrParseError creates a parse error.
func ErrParseError(message string) *Error {
	if message == "" {
		message = "Parse error"
	}
	return NewError(ParseError, message)
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *Error {
	if message == "" {
		message = "Invalid Request"
	}
	return NewError(InvalidRequest, message)
}

// ErrMethodNotFound creates a method not found error.
func ErrMethodNotFound(method string) *Error {
	return NewError(MethodNotFound, "Method not found: "+method)
}

// ErrInvalidParams creates an invalid params error.
func ErrInvalidParams(message string) *Error {
	if message == "" {
		message = "Invalid params"
	}
	return NewError(InvalidParams, message)
}

// ErrInternalError creates an internal error.
func ErrInternalError(message string) *Error {
	if message == "" {
		message = "Internal error"
	}
	return NewError(InternalError, message)
}

// ErrNotAuthenticated rejects a call that needs a signed-in connection.
func ErrNotAuthenticated() *Error {
	return NewError(NotAuthenticated, domain.ErrNotAuthenticated.Error())
}

// FromError converts a handler error into a wire error. RPC errors pass
// through; domain errors get their code; anything else is internal.
func FromError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	code := InternalError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = NotFound
	case errors.Is(err, domain.ErrNotAuthenticated):
		code = NotAuthenticated
	case errors.Is(err, domain.ErrInvalidCredentials):
		code = InvalidCredentials
	case errors.Is(err, domain.ErrEmailInUse):
		code = EmailInUse
	case errors.Is(err, domain.ErrWeakPassword):
		code = WeakPassword
	case errors.Is(err, domain.ErrInvalidPayload):
		code = InvalidPayload
	}
	return NewError(code, err.Error())
}

// ErrorCodeName returns a human-readable name for an error code.
func ErrorCodeName(code int) string {
	switch code {
	case ParseError:
		return "ParseError"
	case InvalidRequest:
		return "InvalidRequest"
	case MethodNotFound:
		return "MethodNotFound"
	case InvalidParams:
		return "InvalidParams"
	case InternalError:
		return "InternalError"
	case NotFound:
		return "NotFound"
	case NotAuthenticated:
		return "NotAuthenticated"
	case InvalidCredentials:
		return "InvalidCredentials"
	case EmailInUse:
		return "EmailInUse"
	case WeakPassword:
		return "WeakPassword"
	case InvalidPayload:
		return "InvalidPayload"
	default:
		return "UnknownError"
	}
}
