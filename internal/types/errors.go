package types

import "errors"

var (
	// ErrConfiguration marks missing or invalid environment, fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrCommandValidation marks a rejected argument, either by us or by the device.
	ErrCommandValidation = errors.New("command validation error")
	// ErrDeviceCommunication marks transport or device failures.
	ErrDeviceCommunication = errors.New("device communication error")
)

// classified keeps the plain message for users while still matching a sentinel.
type classified struct {
	kind error
	msg  string
	err  error
}

func (e *classified) Error() string { return e.msg }

func (e *classified) Unwrap() []error {
	if e.err != nil {
		return []error{e.kind, e.err}
	}
	return []error{e.kind}
}

func NewConfigurationError(msg string) error {
	return &classified{kind: ErrConfiguration, msg: msg}
}

func NewValidationError(msg string) error {
	return &classified{kind: ErrCommandValidation, msg: msg}
}

func NewCommunicationError(msg string) error {
	return &classified{kind: ErrDeviceCommunication, msg: msg}
}

// WrapCommunication classifies err as a device communication failure.
func WrapCommunication(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: ErrDeviceCommunication, msg: err.Error(), err: err}
}

// WrapValidation classifies err as a command validation failure.
func WrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: ErrCommandValidation, msg: err.Error(), err: err}
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
