package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-09")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2025-03-09" {
		t.Fatalf("got %s", d)
	}

	d, err = ParseDate("2025-03-09T18:30:00Z")
	if err != nil || d.String() != "2025-03-09" {
		t.Fatalf("timestamp not truncated: %v %v", d, err)
	}

	if _, err := ParseDate("09/03/2025"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2025, 1, 2))
	if err != nil || string(b) != `"2025-01-02"` {
		t.Fatalf("marshal = %s, %v", b, err)
	}
	b, _ = json.Marshal(Date{})
	if string(b) != "null" {
		t.Fatalf("zero date marshal = %s", b)
	}

	var d Date
	if err := json.Unmarshal([]byte(`"2024-12-31"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.December || d.Day() != 31 {
		t.Fatalf("unexpected date %v", d)
	}
}

func TestMatchValidate(t *testing.T) {
	cases := []struct {
		m     Match
		field string
	}{
		{Match{Name: "Friday futsal", Date: NewDate(2025, 1, 1)}, ""},
		{Match{Name: "  ", Date: NewDate(2025, 1, 1)}, "name"},
		{Match{Name: strings.Repeat("x", 101), Date: NewDate(2025, 1, 1)}, "name"},
		{Match{Name: "ok"}, "date"},
	}
	for i, tc := range cases {
		err := tc.m.Validate()
		if tc.field == "" {
			if err != nil {
				t.Fatalf("case %d expected ok, got %v", i, err)
			}
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != tc.field {
			t.Fatalf("case %d expected validation error on %s, got %v", i, tc.field, err)
		}
	}
}

func TestParticipantValidate(t *testing.T) {
	if err := (Participant{Name: "Alice", Amount: Money{Cents: 100}}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Participant{
		{Name: "", Amount: Money{Cents: 100}},
		{Name: "Bob", Amount: Money{Cents: 0}},
		{Name: "Bob", Amount: Money{Cents: -1}},
	}
	for i, p := range bads {
		if err := p.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{Description: "Balls", Amount: Money{Cents: 3000}}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Expense{
		{Description: "", Amount: Money{Cents: 1}},
		{Description: "a", Amount: Money{Cents: 0}},
		{Description: strings.Repeat("a", 201), Amount: Money{Cents: 1}},
		{Description: "a", Category: strings.Repeat("c", 51), Amount: Money{Cents: 1}},
	}
	for i, e := range bads {
		if err := e.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestNormalizeCategoryAndNameKey(t *testing.T) {
	if NormalizeCategory("  ") != DefaultCategory {
		t.Fatalf("empty category should default to %s", DefaultCategory)
	}
	if NormalizeCategory(" Field ") != "Field" {
		t.Fatalf("category should be trimmed")
	}
	if NameKey(" Alice ") != NameKey("aLICE") {
		t.Fatalf("name keys should be case-insensitive")
	}
}

func TestStorageErrorMatching(t *testing.T) {
	driverErr := errors.New("disk I/O error")
	err := fmt.Errorf("insert participant: %w", NewStorageError("insert participant", driverErr))

	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage match")
	}
	if !errors.Is(err, driverErr) {
		t.Fatalf("expected driver error to stay reachable")
	}
	if NewStorageError("noop", nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
}
