package handler

import (
	"net/http"

	"github.com/roundy-world/lesson-server/internal/infrastructure/validate"
)

// RESTStandardError response error, Message duplicates Detail under the "error"
// key read by the game client
type RESTStandardError struct {
	Type    string `json:"type,omitempty"`
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func NewRESTStandardError(code int, detail string) *RESTStandardError {
	return &RESTStandardError{
		Code:    code,
		Title:   http.StatusText(code),
		Detail:  detail,
		Message: detail,
	}
}

func (re RESTStandardError) Error() string {
	return re.Detail
}

func (re RESTStandardError) SetTraceID(traceID string) RESTStandardError {
	re.TraceID = traceID
	return re
}

// RESTValidationError standard validation error
type RESTValidationError struct {
	RESTStandardError
	InvalidParams validate.FieldErrors `json:"invalid_params"`
}

func NewRESTValidationError(code int, detail string, internal validate.FieldErrors) *RESTValidationError {
	return &RESTValidationError{
		RESTStandardError: *NewRESTStandardError(code, detail),
		InvalidParams:     internal,
	}
}

func (rve RESTValidationError) Error() string {
	return rve.Detail
}

func (rve RESTValidationError) SetTraceID(traceID string) RESTValidationError {
	rve.RESTStandardError.TraceID = traceID
	return rve
}
