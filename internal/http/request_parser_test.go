package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"matchfund/internal/core"
)

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Alice  ", "Alice"},
		{"Ali\x00ce", "Alice"},
		{"line\nbreak", "line\nbreak"},
		{"tab\there", "tab\there"},
		{"\x07bell", "bell"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name        string
		req         any
		wantDetails map[string]string
	}{
		{
			name: "valid expense",
			req:  &addExpenseRequest{Description: "Balls", Category: "Equipment"},
		},
		{
			name:        "missing description",
			req:         &addExpenseRequest{},
			wantDetails: map[string]string{"description": "is required"},
		},
		{
			name:        "category too long",
			req:         &addExpenseRequest{Description: "Balls", Category: strings.Repeat("x", 51)},
			wantDetails: map[string]string{"category": "must be at most 50 characters"},
		},
		{
			name:        "participant name too long",
			req:         &addParticipantRequest{Name: strings.Repeat("x", 101)},
			wantDetails: map[string]string{"name": "must be at most 100 characters"},
		},
		{
			name:        "paid flag missing",
			req:         &updatePaymentRequest{},
			wantDetails: map[string]string{"paid": "is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequest(tt.req)
			if tt.wantDetails == nil {
				if err != nil {
					t.Fatalf("validateRequest() error = %v", err)
				}
				return
			}
			var re *RequestError
			if !errors.As(err, &re) {
				t.Fatalf("validateRequest() error = %v, want *RequestError", err)
			}
			if !errors.Is(err, core.ErrValidation) {
				t.Error("RequestError should match core.ErrValidation")
			}
			for field, want := range tt.wantDetails {
				if got := re.Details[field]; got != want {
					t.Errorf("details[%s] = %q, want %q", field, got, want)
				}
			}
		})
	}
}

func TestDecodeOptionalJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/participants/mark-all-paid", nil)
	var body matchRefRequest
	if err := decodeOptionalJSON(httptest.NewRecorder(), req, &body); err != nil {
		t.Fatalf("empty body should be accepted: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/participants/mark-all-paid", strings.NewReader(`{"matchId":"m1"}`))
	if err := decodeOptionalJSON(httptest.NewRecorder(), req, &body); err != nil || body.MatchID != "m1" {
		t.Fatalf("decodeOptionalJSON() = %+v, %v", body, err)
	}
}

func TestDecodeJSON_MoneyAndDates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/expenses",
		strings.NewReader(`{"description":"Balls","amount":"12.50","expenseDate":"2025-03-01"}`))
	var body addExpenseRequest
	if err := decodeJSON(httptest.NewRecorder(), req, &body); err != nil {
		t.Fatalf("decodeJSON() error = %v", err)
	}
	if body.Amount.Cents != 1250 {
		t.Errorf("amount = %d cents, want 1250", body.Amount.Cents)
	}
	if !body.ExpenseDate.Equal(core.NewDate(2025, 3, 1).Time) {
		t.Errorf("expenseDate = %v", body.ExpenseDate)
	}
}

func TestMatchIDParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/summary?matchId=%20m1%20", nil)
	if got := matchIDParam(req); got != "m1" {
		t.Errorf("matchIDParam() = %q, want m1", got)
	}
}
