package core

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultCategory is applied to expenses submitted without a category.
const DefaultCategory = "Others"

const (
	maxNameLength        = 100
	maxDescriptionLength = 200
	maxCategoryLength    = 50
)

type (
	// Date is a calendar date without a time of day (match date, expense date).
	Date struct {
		time.Time
	}

	// Match is one accounting period. While active its totals are not
	// authoritative; once ended they are frozen.
	Match struct {
		ID             string     `json:"id"`
		Name           string     `json:"name"`
		Date           Date       `json:"matchDate"`
		Active         bool       `json:"isActive"`
		CarryOver      Money      `json:"carryOverAmount"`
		TotalCollected Money      `json:"totalCollected"`
		TotalExpenses  Money      `json:"totalExpenses"`
		FinalBalance   Money      `json:"finalBalance"`
		CreatedAt      time.Time  `json:"createdAt"`
		EndedAt        *time.Time `json:"endedAt"`
		CreatedByEmail string     `json:"createdByEmail,omitempty"`
		CreatedByName  string     `json:"createdByName,omitempty"`
	}

	Participant struct {
		ID          string     `json:"id"`
		MatchID     string     `json:"matchId"`
		Name        string     `json:"name"`
		Amount      Money      `json:"amount"`
		Paid        bool       `json:"paid"`
		DateAdded   time.Time  `json:"dateAdded"`
		PaymentDate *time.Time `json:"paymentDate"`
		LastUpdated time.Time  `json:"lastUpdated"`
	}

	Expense struct {
		ID          string    `json:"id"`
		MatchID     string    `json:"matchId"`
		Category    string    `json:"category"`
		Description string    `json:"description"`
		Amount      Money     `json:"amount"`
		ExpenseDate Date      `json:"expenseDate"`
		DateAdded   time.Time `json:"dateAdded"`
	}

	// MatchTotals are the figures frozen into a match row when it ends.
	MatchTotals struct {
		TotalCollected Money
		TotalExpenses  Money
		FinalBalance   Money
	}

	// Principal is the authenticated identity recorded as a match creator.
	Principal struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		FirstName string `json:"firstName,omitempty"`
	}
)

const dateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string. An RFC 3339 timestamp is accepted too
// and truncated to its date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Reason: "must be formatted as YYYY-MM-DD"}
	}
	return DateOf(t), nil
}

// String returns the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks the fields a caller supplies when creating a match.
func (m Match) Validate() error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return &ValidationError{Field: "name", Reason: "match name is required"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{Field: "name", Reason: "match name too long (max 100 characters)"}
	}
	if m.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "match date is required"}
	}
	return nil
}

// Ended reports whether the match has been closed.
func (m Match) Ended() bool {
	return !m.Active || m.EndedAt != nil
}

func (p Participant) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return &ValidationError{Field: "name", Reason: "participant name is required"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{Field: "name", Reason: "participant name too long (max 100 characters)"}
	}
	if p.Amount.Cents <= 0 {
		return &ValidationError{Field: "amount", Reason: "amount must be greater than zero"}
	}
	return nil
}

func (e Expense) Validate() error {
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		return &ValidationError{Field: "description", Reason: "description is required"}
	}
	if len(desc) > maxDescriptionLength {
		return &ValidationError{Field: "description", Reason: "description too long (max 200 characters)"}
	}
	if len(strings.TrimSpace(e.Category)) > maxCategoryLength {
		return &ValidationError{Field: "category", Reason: "category too long (max 50 characters)"}
	}
	if e.Amount.Cents <= 0 {
		return &ValidationError{Field: "amount", Reason: "amount must be greater than zero"}
	}
	return nil
}

// NormalizeCategory trims a category and falls back to DefaultCategory.
func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return DefaultCategory
	}
	return category
}

// NameKey is the case-insensitive identity of a participant name within a match.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
