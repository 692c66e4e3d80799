// Package report renders the financial transparency report of a match and its
// JSON export.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"matchfund/internal/core"
)

// Currency is prefixed to every amount in the text report.
var Currency = "৳"

const (
	FilenamePrefix       = "sports-financial-report"
	ExportFilenamePrefix = "sports-money-tracker"
	wideRule             = 60
	narrowRule           = 30
)

// Text renders the plain-text financial transparency report.
func Text(s core.FinancialSummary, generatedAt time.Time) string {
	var b strings.Builder

	b.WriteString("OFFICE SPORTS FINANCIAL TRANSPARENCY REPORT\n")
	if s.Match.Name != "" {
		fmt.Fprintf(&b, "Match: %s (%s)\n", s.Match.Name, s.Match.Date.Format("02/01/2006"))
	}
	fmt.Fprintf(&b, "Generated on: %s\n", generatedAt.Format("02/01/2006, 15:04:05"))
	b.WriteString(strings.Repeat("=", wideRule) + "\n\n")

	section(&b, "FINANCIAL SUMMARY")
	fmt.Fprintf(&b, "Total Participants: %d\n", s.TotalParticipants)
	fmt.Fprintf(&b, "Paid: %d | Pending: %d\n\n", s.PaidParticipants, s.PendingParticipants)

	b.WriteString("COLLECTIONS\n")
	fmt.Fprintf(&b, "Expected Amount: %s\n", amount(s.TotalExpected))
	fmt.Fprintf(&b, "Collected Amount: %s\n", amount(s.TotalCollected))
	fmt.Fprintf(&b, "Pending Collection: %s\n", amount(s.PendingCollection))
	if s.CarryOverAmount.Cents != 0 {
		fmt.Fprintf(&b, "Carry-over: %s\n", amount(s.CarryOverAmount))
	}
	b.WriteString("\n")

	b.WriteString("EXPENSES\n")
	fmt.Fprintf(&b, "Total Expenses: %s\n\n", amount(s.TotalExpenses))

	if len(s.Expenses) > 0 {
		b.WriteString("Expense Breakdown:\n")
		for _, c := range s.Categories() {
			fmt.Fprintf(&b, "  - %s: %s\n", c.Name, amount(c.Amount))
		}
		b.WriteString("\n")
	}

	b.WriteString("FINAL BALANCE\n")
	fmt.Fprintf(&b, "Balance: %s (%s)\n", amount(s.Balance.Balance), s.Status())

	b.WriteString("\n" + strings.Repeat("=", wideRule) + "\n\n")

	section(&b, "PARTICIPANT DETAILS")
	for _, p := range s.Participants {
		status := "PENDING"
		if p.Paid {
			status = "PAID"
		}
		fmt.Fprintf(&b, "%s: %s [%s]\n", p.Name, amount(p.Amount), status)
	}

	if len(s.Expenses) > 0 {
		b.WriteString("\n")
		section(&b, "EXPENSE DETAILS")
		for _, e := range s.Expenses {
			day := e.ExpenseDate.Time
			if day.IsZero() {
				day = e.DateAdded
			}
			fmt.Fprintf(&b, "%s | %s | %s: %s\n", day.Format("02/01/2006"), e.Category, e.Description, amount(e.Amount))
		}
	}

	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("-", narrowRule) + "\n")
}

func amount(m core.Money) string {
	if m.Cents < 0 {
		return "-" + Currency + m.Abs().String()
	}
	return Currency + m.String()
}

// Document is the machine-readable export of a match.
type Document struct {
	ExportDate   time.Time          `json:"exportDate"`
	CurrentMatch core.Match         `json:"currentMatch"`
	Participants []core.Participant `json:"participants"`
	Expenses     []core.Expense     `json:"expenses"`
	Summary      core.Balance       `json:"summary"`
}

// Export renders the JSON export document.
func Export(s core.FinancialSummary, exportedAt time.Time) ([]byte, error) {
	doc := Document{
		ExportDate:   exportedAt.UTC(),
		CurrentMatch: s.Match,
		Participants: s.Participants,
		Expenses:     s.Expenses,
		Summary:      s.Balance,
	}
	if doc.Participants == nil {
		doc.Participants = []core.Participant{}
	}
	if doc.Expenses == nil {
		doc.Expenses = []core.Expense{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Filename returns prefix-YYYY-MM-DD.ext, e.g. sports-financial-report-2025-03-01.txt.
func Filename(prefix string, at time.Time, ext string) string {
	if prefix == "" {
		prefix = FilenamePrefix
	}
	return fmt.Sprintf("%s-%s.%s", prefix, at.Format("2006-01-02"), strings.TrimPrefix(ext, "."))
}

// FileWriter writes the text report and the JSON export of a match under
// <dir>/<match id>/.
type FileWriter struct {
	dir string
}

func NewFileWriter(dir string) *FileWriter {
	return &FileWriter{dir: dir}
}

// WriteReports returns the directory the files were written to.
func (w *FileWriter) WriteReports(ctx context.Context, s core.FinancialSummary, at time.Time) (string, error) {
	if s.Match.ID == "" {
		return "", errors.New("summary has no match id")
	}
	dir := filepath.Join(w.dir, s.Match.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	day := s.Match.Date.Time
	if day.IsZero() {
		day = at
	}
	textPath := filepath.Join(dir, Filename(FilenamePrefix, day, "txt"))
	if err := os.WriteFile(textPath, []byte(Text(s, at)), 0644); err != nil {
		return "", fmt.Errorf("write text report: %w", err)
	}

	doc, err := Export(s, at)
	if err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}
	jsonPath := filepath.Join(dir, Filename(ExportFilenamePrefix, day, "json"))
	if err := os.WriteFile(jsonPath, doc, 0644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}

	slog.DebugContext(ctx, "Reports written", "text", textPath, "json", jsonPath)
	return dir, nil
}
