package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"matchfund/internal/auth"
	"matchfund/internal/core"
	"matchfund/internal/log"
	"matchfund/internal/report"
	"matchfund/internal/services"
	"matchfund/internal/storage/memory"
)

const testClientURL = "http://client.test"

func newTestServer(t *testing.T, cfg Config, deps Deps) *Server {
	t.Helper()
	store := memory.New()
	if deps.Ledger == nil {
		deps.Ledger = services.NewLedgerService(store)
	}
	if deps.Exports == nil {
		deps.Exports = store
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
	}
	if cfg.ClientURL == "" {
		cfg.ClientURL = testClientURL
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 1000
	}
	s := NewServer(cfg, deps)
	t.Cleanup(s.limiter.Stop)
	return s
}

// openServer has no authentication gate.
func openServer(t *testing.T) *Server {
	return newTestServer(t, Config{AuthDisabled: true}, Deps{})
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func createMatch(t *testing.T, h http.Handler, body string, headers ...string) core.Match {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/matches", body, headers...)
	expectStatus(t, rec, http.StatusCreated)
	return decodeBody[createMatchResponse](t, rec).Match
}

func TestServer_MatchLifecycle(t *testing.T) {
	h := openServer(t).Handler

	rec := do(t, h, http.MethodPost, "/api/matches", `{"name":"Friday futsal","date":"2025-03-01"}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decodeBody[createMatchResponse](t, rec)
	if created.Message != "Match created successfully" {
		t.Errorf("message = %q", created.Message)
	}
	if !created.Match.Active || created.Match.Name != "Friday futsal" {
		t.Fatalf("unexpected match %+v", created.Match)
	}
	matchID := created.Match.ID

	rec = do(t, h, http.MethodGet, "/api/matches/current", "")
	expectStatus(t, rec, http.StatusOK)
	if current := decodeBody[core.Match](t, rec); current.ID != matchID {
		t.Errorf("current match = %s, want %s", current.ID, matchID)
	}

	rec = do(t, h, http.MethodPost, "/api/participants", `{"name":"Alice","amount":100}`)
	expectStatus(t, rec, http.StatusCreated)
	alice := decodeBody[core.Participant](t, rec)
	if alice.MatchID != matchID || alice.Paid {
		t.Fatalf("unexpected participant %+v", alice)
	}

	rec = do(t, h, http.MethodPut, "/api/participants/"+alice.ID, `{"paid":true}`)
	expectStatus(t, rec, http.StatusOK)
	if paid := decodeBody[core.Participant](t, rec); !paid.Paid || paid.PaymentDate == nil {
		t.Errorf("participant not marked paid: %+v", paid)
	}

	rec = do(t, h, http.MethodPost, "/api/expenses", `{"description":"Balls","amount":"30"}`)
	expectStatus(t, rec, http.StatusCreated)
	if e := decodeBody[core.Expense](t, rec); e.Category != core.DefaultCategory {
		t.Errorf("category = %q, want %q", e.Category, core.DefaultCategory)
	}

	rec = do(t, h, http.MethodGet, "/api/participants", "")
	expectStatus(t, rec, http.StatusOK)
	if list := decodeBody[[]core.Participant](t, rec); len(list) != 1 {
		t.Errorf("participants = %d, want 1", len(list))
	}

	rec = do(t, h, http.MethodGet, "/api/expenses?matchId="+matchID, "")
	expectStatus(t, rec, http.StatusOK)
	if list := decodeBody[[]core.Expense](t, rec); len(list) != 1 {
		t.Errorf("expenses = %d, want 1", len(list))
	}

	rec = do(t, h, http.MethodGet, "/api/summary", "")
	expectStatus(t, rec, http.StatusOK)
	summary := decodeBody[core.FinancialSummary](t, rec)
	if summary.Balance.Balance.Cents != 7000 || summary.TotalCollected.Cents != 10000 {
		t.Errorf("unexpected summary %+v", summary.Balance)
	}

	rec = do(t, h, http.MethodPost, "/api/matches/"+matchID+"/end", "")
	expectStatus(t, rec, http.StatusOK)
	ended := decodeBody[endMatchResponse](t, rec)
	if ended.Match.Active || ended.Match.EndedAt == nil {
		t.Errorf("match still active: %+v", ended.Match)
	}
	if ended.Match.FinalBalance.Cents != 7000 || ended.Summary.Balance.Balance.Cents != 7000 {
		t.Errorf("final balance = %v / %v, want 70", ended.Match.FinalBalance, ended.Summary.Balance.Balance)
	}

	rec = do(t, h, http.MethodGet, "/api/matches/current", "")
	expectStatus(t, rec, http.StatusOK)
	if body := strings.TrimSpace(rec.Body.String()); body != "null" {
		t.Errorf("current match after end = %s, want null", body)
	}

	rec = do(t, h, http.MethodGet, "/api/matches/last-balance", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[map[string]core.Money](t, rec)["balance"]; got.Cents != 7000 {
		t.Errorf("last balance = %v, want 70", got)
	}

	rec = do(t, h, http.MethodGet, "/api/matches", "")
	expectStatus(t, rec, http.StatusOK)
	if list := decodeBody[[]core.Match](t, rec); len(list) != 1 {
		t.Errorf("matches = %d, want 1", len(list))
	}

	rec = do(t, h, http.MethodGet, "/api/matches/"+matchID, "")
	expectStatus(t, rec, http.StatusOK)
}

func TestServer_CarryOverSeedsNextMatch(t *testing.T) {
	h := openServer(t).Handler

	first := createMatch(t, h, `{"name":"Week 1","date":"2025-03-01","carryOverAmount":10}`)
	do(t, h, http.MethodPost, "/api/participants", `{"name":"Alice","amount":40}`)
	do(t, h, http.MethodPost, "/api/participants/mark-all-paid", "")

	second := createMatch(t, h, `{"name":"Week 2","date":"2025-03-08","carryOverAmount":50}`)
	if second.CarryOver.Cents != 5000 || second.FinalBalance.Cents != 5000 {
		t.Errorf("new match totals not seeded: %+v", second)
	}

	rec := do(t, h, http.MethodGet, "/api/matches/"+first.ID, "")
	expectStatus(t, rec, http.StatusOK)
	prev := decodeBody[core.Match](t, rec)
	if prev.Active || prev.FinalBalance.Cents != 5000 {
		t.Errorf("previous match not settled: %+v", prev)
	}
}

func TestServer_Errors(t *testing.T) {
	h := openServer(t).Handler

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantError  string
		wantDetail string
	}{
		{"add participant without match", http.MethodPost, "/api/participants", `{"name":"Alice","amount":10}`, http.StatusBadRequest, "No active match", ""},
		{"add expense without match", http.MethodPost, "/api/expenses", `{"description":"Balls","amount":10}`, http.StatusBadRequest, "No active match", ""},
		{"summary without match", http.MethodGet, "/api/summary", "", http.StatusNotFound, "No active match", ""},
		{"mark all without match", http.MethodPost, "/api/participants/mark-all-paid", "", http.StatusBadRequest, "No active match", ""},
		{"unknown match", http.MethodGet, "/api/matches/nope", "", http.StatusNotFound, "not found", ""},
		{"end unknown match", http.MethodPost, "/api/matches/nope/end", "", http.StatusNotFound, "not found", ""},
		{"delete unknown expense", http.MethodDelete, "/api/expenses/nope", "", http.StatusNotFound, "not found", ""},
		{"update unknown participant", http.MethodPut, "/api/participants/nope", `{"paid":true}`, http.StatusNotFound, "not found", ""},
		{"match name required", http.MethodPost, "/api/matches", `{"date":"2025-03-01"}`, http.StatusBadRequest, "invalid request", "name"},
		{"match date required", http.MethodPost, "/api/matches", `{"name":"Friday"}`, http.StatusBadRequest, "date", "date"},
		{"bad date", http.MethodPost, "/api/matches", `{"name":"Friday","date":"01/03/2025"}`, http.StatusBadRequest, "", ""},
		{"malformed json", http.MethodPost, "/api/matches", `{"name":`, http.StatusBadRequest, "invalid JSON body", ""},
		{"empty body", http.MethodPost, "/api/matches", "", http.StatusBadRequest, "request body is required", ""},
		{"paid flag required", http.MethodPut, "/api/participants/p1", `{}`, http.StatusBadRequest, "invalid request", "paid"},
		{"bad amount", http.MethodPost, "/api/participants", `{"name":"Alice","amount":"lots"}`, http.StatusBadRequest, "amount", "amount"},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound, "Route not found", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			expectStatus(t, rec, tt.wantStatus)
			body := decodeBody[ErrorBody](t, rec)
			if !strings.Contains(body.Error, tt.wantError) {
				t.Errorf("error = %q, want it to contain %q", body.Error, tt.wantError)
			}
			if tt.wantDetail != "" {
				if _, ok := body.Details[tt.wantDetail]; !ok {
					t.Errorf("details %v missing %q", body.Details, tt.wantDetail)
				}
			}
		})
	}
}

func TestServer_EmptyListsWithoutMatch(t *testing.T) {
	h := openServer(t).Handler

	for _, path := range []string{"/api/participants", "/api/expenses", "/api/matches"} {
		rec := do(t, h, http.MethodGet, path, "")
		expectStatus(t, rec, http.StatusOK)
		if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
			t.Errorf("GET %s = %s, want []", path, body)
		}
	}

	rec := do(t, h, http.MethodGet, "/api/matches/last-balance", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[map[string]core.Money](t, rec)["balance"]; got.Cents != 0 {
		t.Errorf("last balance = %v, want 0", got)
	}
}

func TestServer_Conflicts(t *testing.T) {
	h := openServer(t).Handler
	m := createMatch(t, h, `{"name":"Friday","date":"2025-03-01"}`)

	expectStatus(t, do(t, h, http.MethodPost, "/api/participants", `{"name":"Alice","amount":10}`), http.StatusCreated)

	rec := do(t, h, http.MethodPost, "/api/participants", `{"name":"  alice ","amount":10}`)
	expectStatus(t, rec, http.StatusConflict)
	if body := decodeBody[ErrorBody](t, rec); body.Error != "Participant already exists in this match" {
		t.Errorf("error = %q", body.Error)
	}

	expectStatus(t, do(t, h, http.MethodPost, "/api/matches/"+m.ID+"/end", ""), http.StatusOK)
	expectStatus(t, do(t, h, http.MethodPost, "/api/matches/"+m.ID+"/end", ""), http.StatusConflict)

	rec = do(t, h, http.MethodPost, "/api/participants", `{"matchId":"`+m.ID+`","name":"Bob","amount":10}`)
	expectStatus(t, rec, http.StatusConflict)
	rec = do(t, h, http.MethodPost, "/api/expenses", `{"matchId":"`+m.ID+`","description":"Late fee","amount":10}`)
	expectStatus(t, rec, http.StatusConflict)
}

func TestServer_MarkAll(t *testing.T) {
	h := openServer(t).Handler
	m := createMatch(t, h, `{"name":"Friday","date":"2025-03-01"}`)
	do(t, h, http.MethodPost, "/api/participants", `{"name":"Alice","amount":10}`)
	do(t, h, http.MethodPost, "/api/participants", `{"name":"Bob","amount":10}`)

	rec := do(t, h, http.MethodPost, "/api/participants/mark-all-paid", "")
	expectStatus(t, rec, http.StatusOK)
	got := decodeBody[bulkUpdateResponse](t, rec)
	if got.Updated != 2 || got.Message != "2 participants marked as paid" {
		t.Errorf("mark-all-paid = %+v", got)
	}

	rec = do(t, h, http.MethodPost, "/api/participants/mark-all-pending", `{"matchId":"`+m.ID+`"}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[bulkUpdateResponse](t, rec); got.Updated != 2 {
		t.Errorf("mark-all-pending updated = %d, want 2", got.Updated)
	}

	rec = do(t, h, http.MethodGet, "/api/summary?matchId="+m.ID, "")
	if s := decodeBody[core.FinancialSummary](t, rec); s.PaidParticipants != 0 || s.PendingParticipants != 2 {
		t.Errorf("summary after pending = %+v", s.Balance)
	}
}

func TestServer_DeleteLineItems(t *testing.T) {
	h := openServer(t).Handler
	createMatch(t, h, `{"name":"Friday","date":"2025-03-01"}`)

	p := decodeBody[core.Participant](t, do(t, h, http.MethodPost, "/api/participants", `{"name":"Alice","amount":10}`))
	e := decodeBody[core.Expense](t, do(t, h, http.MethodPost, "/api/expenses", `{"description":"Balls","amount":5}`))

	rec := do(t, h, http.MethodDelete, "/api/participants/"+p.ID, "")
	expectStatus(t, rec, http.StatusOK)
	if msg := decodeBody[messageResponse](t, rec).Message; msg != "Participant deleted successfully" {
		t.Errorf("message = %q", msg)
	}
	rec = do(t, h, http.MethodDelete, "/api/expenses/"+e.ID, "")
	expectStatus(t, rec, http.StatusOK)

	expectStatus(t, do(t, h, http.MethodDelete, "/api/participants/"+p.ID, ""), http.StatusNotFound)
}

func TestServer_ReportDownloads(t *testing.T) {
	h := openServer(t).Handler
	m := createMatch(t, h, `{"name":"Friday","date":"2025-03-01"}`)
	do(t, h, http.MethodPost, "/api/participants", `{"name":"Alice","amount":10}`)

	rec := do(t, h, http.MethodGet, "/api/matches/"+m.ID+"/report", "")
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, report.FilenamePrefix) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "FINANCIAL TRANSPARENCY REPORT") {
		t.Errorf("unexpected report body:\n%s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/matches/"+m.ID+"/export", "")
	expectStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, report.ExportFilenamePrefix) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	doc := decodeBody[report.Document](t, rec)
	if doc.CurrentMatch.ID != m.ID || len(doc.Participants) != 1 {
		t.Errorf("unexpected export %+v", doc)
	}

	expectStatus(t, do(t, h, http.MethodGet, "/api/matches/nope/report", ""), http.StatusNotFound)
}

func TestServer_AuthGate(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	h := newTestServer(t, Config{}, Deps{Tokens: tokens}).Handler

	body := `{"name":"Friday","date":"2025-03-01"}`
	expectStatus(t, do(t, h, http.MethodPost, "/api/matches", body), http.StatusUnauthorized)
	expectStatus(t, do(t, h, http.MethodGet, "/api/matches", ""), http.StatusOK)
	expectStatus(t, do(t, h, http.MethodPost, "/api/matches", body, "Authorization", "Bearer garbage"), http.StatusUnauthorized)

	token, err := tokens.Generate(core.Principal{ID: "u1", Email: "alice@example.com", Name: "Alice Rossi"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	m := createMatch(t, h, body, "Authorization", "Bearer "+token)
	if m.CreatedByEmail != "alice@example.com" || m.CreatedByName != "Alice Rossi" {
		t.Errorf("creator not recorded: %+v", m)
	}

	// The session cookie authenticates too.
	rec := do(t, h, http.MethodPost, "/api/participants", `{"name":"Bob","amount":10}`, "Cookie", auth.CookieName+"="+token)
	expectStatus(t, rec, http.StatusCreated)
}

func TestServer_AuthGateRejectsForeignDomain(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	h := newTestServer(t, Config{}, Deps{Tokens: tokens, AllowedDomain: "example.com"}).Handler

	token, err := tokens.Generate(core.Principal{ID: "u2", Email: "mallory@evil.test"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	rec := do(t, h, http.MethodPost, "/api/matches", `{"name":"Friday","date":"2025-03-01"}`, "Authorization", "Bearer "+token)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestServer_AuthRoutes(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	h := newTestServer(t, Config{}, Deps{Tokens: tokens}).Handler

	rec := do(t, h, http.MethodGet, "/auth/user", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[authUserResponse](t, rec); got.Authenticated || got.User != nil {
		t.Errorf("anonymous user = %+v", got)
	}

	token, _ := tokens.Generate(core.Principal{ID: "u1", Email: "alice@example.com", Name: "Alice"})
	rec = do(t, h, http.MethodGet, "/auth/user", "", "Cookie", auth.CookieName+"="+token)
	if got := decodeBody[authUserResponse](t, rec); !got.Authenticated || got.User.Email != "alice@example.com" {
		t.Errorf("authenticated user = %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/auth/verify", "", "Authorization", "Bearer "+token)
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, do(t, h, http.MethodGet, "/auth/verify", ""), http.StatusUnauthorized)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec = do(t, h, method, "/auth/logout", "")
		expectStatus(t, rec, http.StatusFound)
		if loc := rec.Header().Get("Location"); loc != testClientURL+"?logout=success" {
			t.Errorf("%s logout redirect = %q", method, loc)
		}
		if c := rec.Header().Get("Set-Cookie"); !strings.Contains(c, auth.CookieName+"=") || !strings.Contains(c, "Max-Age=0") {
			t.Errorf("%s logout cookie = %q", method, c)
		}
	}

	expectStatus(t, do(t, h, http.MethodGet, "/auth/google", ""), http.StatusServiceUnavailable)
}

func TestServer_Middleware(t *testing.T) {
	h := openServer(t).Handler

	rec := do(t, h, http.MethodGet, "/api/health", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[map[string]string](t, rec)["status"]; got != "OK" {
		t.Errorf("health status = %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}

	rec = do(t, h, http.MethodOptions, "/api/matches", "",
		"Origin", testClientURL,
		"Access-Control-Request-Method", http.MethodPost)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != testClientURL {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q", got)
	}

	rec = do(t, h, http.MethodGet, "/api/health", "", "Origin", "http://evil.test")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestServer_RateLimitsMutations(t *testing.T) {
	h := newTestServer(t, Config{AuthDisabled: true, RateLimitPerMinute: 2}, Deps{}).Handler

	for i := 0; i < 2; i++ {
		expectStatus(t, do(t, h, http.MethodPost, "/api/matches", `{}`), http.StatusBadRequest)
	}
	rec := do(t, h, http.MethodPost, "/api/matches", `{}`)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	expectStatus(t, do(t, h, http.MethodGet, "/api/matches", ""), http.StatusOK)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := openServer(t)
	h := s.Handler

	rec := do(t, h, http.MethodGet, "/healthz", "")
	expectStatus(t, rec, http.StatusOK)

	rec = do(t, h, http.MethodGet, "/readyz", "")
	expectStatus(t, rec, http.StatusOK)

	rec = do(t, h, http.MethodGet, "/api/metrics", "")
	expectStatus(t, rec, http.StatusOK)
	m := decodeBody[metricsResponse](t, rec)
	if m.Requests.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", m.Requests.TotalRequests)
	}
	if m.Exports == nil {
		t.Error("export stats missing")
	}
}

func TestServer_ReadyReportsStorageFailure(t *testing.T) {
	s := newTestServer(t, Config{AuthDisabled: true}, Deps{
		Ready: func(ctx context.Context) error { return errors.New("database is locked") },
	})

	rec := do(t, s.Handler, http.MethodGet, "/readyz", "")
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if !strings.Contains(rec.Body.String(), "database is locked") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
