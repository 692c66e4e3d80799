// Package http exposes the ledger as a JSON API.
//
// This file implements the Builder Pattern for JSON responses and maps ledger
// errors onto status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"matchfund/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
	raw        []byte
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Attachment marks the response as a download named filename.
func (b *JSONResponseBuilder) Attachment(filename string) *JSONResponseBuilder {
	return b.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
}

// Body sets the value encoded as the JSON body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.payload = v
	b.raw = nil
	return b
}

// Raw sends content as-is with the given content type.
func (b *JSONResponseBuilder) Raw(contentType string, content []byte) *JSONResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.raw = content
	b.payload = nil
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	body := b.raw
	if body == nil {
		encoded, err := json.Marshal(b.payload)
		if err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		body = encoded
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(ErrorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ValidationErrorResponse creates a 400 response listing the offending fields.
func ValidationErrorResponse(message string, details map[string]string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(http.StatusBadRequest).
		Body(ErrorBody{Error: message, Details: details})
}

// opKind tells errorResponse whether a missing active match is a bad write or
// an empty read.
type opKind int

const (
	opRead opKind = iota
	opWrite
)

// errorResponse maps a ledger error onto its HTTP status. Storage and unknown
// failures are reported as 500 with fallback as message.
func errorResponse(err error, kind opKind, fallback string) *JSONResponseBuilder {
	var ve *core.ValidationError
	var re *RequestError
	switch {
	case errors.As(err, &re):
		return ValidationErrorResponse(re.Message, re.Details)
	case errors.As(err, &ve):
		details := map[string]string{}
		if ve.Field != "" {
			details[ve.Field] = ve.Reason
		}
		return ValidationErrorResponse(ve.Error(), details)
	case errors.Is(err, core.ErrNoActiveMatch):
		if kind == opWrite {
			return BadRequestError("No active match found. Please create a match first.")
		}
		return NotFoundError("No active match found")
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, core.ErrDuplicateParticipant):
		return ErrorResponse(http.StatusConflict, "Participant already exists in this match")
	case errors.Is(err, core.ErrMatchEnded):
		return ErrorResponse(http.StatusConflict, "Match has already ended")
	case errors.Is(err, core.ErrValidation):
		return BadRequestError(err.Error())
	default:
		return InternalServerError(fallback)
	}
}
