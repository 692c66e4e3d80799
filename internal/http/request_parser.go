// Package http provides HTTP server and handler implementations.
//
// This file decodes and validates JSON request bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"matchfund/internal/core"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so error details match what clients sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type createMatchRequest struct {
	Name            string      `json:"name" validate:"required,max=100"`
	Date            core.Date   `json:"date"`
	CarryOverAmount *core.Money `json:"carryOverAmount"`
}

type addParticipantRequest struct {
	MatchID string     `json:"matchId" validate:"omitempty,max=64"`
	Name    string     `json:"name" validate:"required,max=100"`
	Amount  core.Money `json:"amount"`
}

type updatePaymentRequest struct {
	Paid *bool `json:"paid" validate:"required"`
}

type matchRefRequest struct {
	MatchID string `json:"matchId" validate:"omitempty,max=64"`
}

type addExpenseRequest struct {
	MatchID     string     `json:"matchId" validate:"omitempty,max=64"`
	Category    string     `json:"category" validate:"omitempty,max=50"`
	Description string     `json:"description" validate:"required,max=200"`
	Amount      core.Money `json:"amount"`
	ExpenseDate core.Date  `json:"expenseDate"`
}

// RequestError lists invalid request fields. It matches core.ErrValidation.
type RequestError struct {
	Message string
	Details map[string]string
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return core.ErrValidation }

// decodeJSON reads a JSON body into dst and validates its struct tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, false)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, true)
}

func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var ve *core.ValidationError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF) && optional:
		case errors.Is(err, io.EOF):
			return &RequestError{Message: "request body is required"}
		case errors.As(err, &ve):
			return ve
		case errors.As(err, &tooLarge):
			return &RequestError{Message: "request body too large"}
		default:
			return &RequestError{Message: "invalid JSON body"}
		}
	}
	return validateRequest(dst)
}

func validateRequest(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{Message: err.Error()}
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = describeFieldError(fe)
	}
	return &RequestError{Message: "invalid request", Details: details}
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation on '%s'", fe.Tag())
	}
}

// matchIDParam reads the optional matchId query parameter.
func matchIDParam(r *http.Request) string {
	return sanitizeInput(r.URL.Query().Get("matchId"))
}

// sanitizeInput trims s and strips control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
