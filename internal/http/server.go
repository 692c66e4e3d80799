package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"matchfund/internal/auth"
	"matchfund/internal/cache"
	"matchfund/internal/core"
	"matchfund/internal/log"
	"matchfund/internal/middleware/ratelimit"
	"matchfund/internal/middleware/security"
	"matchfund/internal/middleware/trace"
	"matchfund/internal/services"
	"matchfund/internal/storage"

	"github.com/go-chi/cors"
)

// Ledger is the part of services.LedgerService the handlers use.
type Ledger interface {
	CreateMatch(ctx context.Context, in services.CreateMatchInput) (core.Match, error)
	GetCurrentMatch(ctx context.Context) (*core.Match, error)
	GetMatch(ctx context.Context, id string) (core.Match, error)
	ListMatches(ctx context.Context) ([]core.Match, error)
	EndMatch(ctx context.Context, id string) (core.Match, core.FinancialSummary, error)
	GetLastMatchBalance(ctx context.Context) (core.Money, error)
	ResolveMatchID(ctx context.Context, id string) (string, error)

	AddParticipant(ctx context.Context, in services.AddParticipantInput) (core.Participant, error)
	ListParticipants(ctx context.Context, matchID string) ([]core.Participant, error)
	UpdateParticipantPayment(ctx context.Context, id string, paid bool) (core.Participant, error)
	DeleteParticipant(ctx context.Context, id string) error
	MarkAllParticipantsPaid(ctx context.Context, matchID string) (int64, error)
	MarkAllParticipantsPending(ctx context.Context, matchID string) (int64, error)

	AddExpense(ctx context.Context, in services.AddExpenseInput) (core.Expense, error)
	ListExpenses(ctx context.Context, matchID string) ([]core.Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	GetFinancialSummary(ctx context.Context, matchID string) (core.FinancialSummary, error)
	CacheStats() cache.Stats
}

var _ Ledger = (*services.LedgerService)(nil)

// ExportStatsReader reports the export queue for /api/metrics.
type ExportStatsReader interface {
	ExportStats(ctx context.Context) (storage.ExportStats, error)
}

// Config holds the HTTP-facing settings.
type Config struct {
	Addr string
	// ClientURL is where OAuth callbacks and logout redirect to.
	ClientURL          string
	AllowedOrigins     []string
	RateLimitPerMinute int
	TrustedProxies     []string
	// AuthDisabled skips the mutation gate. Local development only.
	AuthDisabled bool
}

// Deps are the collaborators of the server. Google may be nil, which
// disables the login routes.
type Deps struct {
	Ledger        Ledger
	Tokens        *auth.TokenManager
	Google        *auth.GoogleAuthenticator
	AllowedDomain string
	Exports       ExportStatsReader
	Ready         func(ctx context.Context) error
	Logger        *log.Logger
}

type Server struct {
	http.Server
	ledger    Ledger
	tokens    *auth.TokenManager
	google    *auth.GoogleAuthenticator
	gate      *auth.Gate
	exports   ExportStatsReader
	ready     func(ctx context.Context) error
	logger    *log.Logger
	clientURL string

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, "error", err)
		}
	}

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ledger:    deps.Ledger,
		tokens:    deps.Tokens,
		google:    deps.Google,
		exports:   deps.Exports,
		ready:     deps.Ready,
		logger:    logger,
		clientURL: strings.TrimRight(cfg.ClientURL, "/"),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
		detector: detector,
		started:  time.Now(),
	}
	s.tracer = trace.NewMiddleware(detector.ExtractClientIP, logger)
	if deps.Tokens != nil && !cfg.AuthDisabled {
		s.gate = auth.NewGate(deps.Tokens, deps.AllowedDomain)
	} else {
		logger.Warn("Authentication disabled, mutations are open to every caller")
	}

	s.Handler = s.middleware(s.routes(), cfg)
	return s
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/health", s.handleAPIHealth)
	api.HandleFunc("GET /api/metrics", s.handleMetrics)

	api.HandleFunc("GET /api/matches", s.handleListMatches)
	api.HandleFunc("POST /api/matches", s.handleCreateMatch)
	api.HandleFunc("GET /api/matches/current", s.handleCurrentMatch)
	api.HandleFunc("GET /api/matches/last-balance", s.handleLastBalance)
	api.HandleFunc("GET /api/matches/{id}", s.handleGetMatch)
	api.HandleFunc("POST /api/matches/{id}/end", s.handleEndMatch)
	api.HandleFunc("GET /api/matches/{id}/report", s.handleMatchReport)
	api.HandleFunc("GET /api/matches/{id}/export", s.handleMatchExport)

	api.HandleFunc("GET /api/participants", s.handleListParticipants)
	api.HandleFunc("POST /api/participants", s.handleAddParticipant)
	api.HandleFunc("POST /api/participants/mark-all-paid", s.handleMarkAllPaid)
	api.HandleFunc("POST /api/participants/mark-all-pending", s.handleMarkAllPending)
	api.HandleFunc("PUT /api/participants/{id}", s.handleUpdatePayment)
	api.HandleFunc("DELETE /api/participants/{id}", s.handleDeleteParticipant)

	api.HandleFunc("GET /api/expenses", s.handleListExpenses)
	api.HandleFunc("POST /api/expenses", s.handleAddExpense)
	api.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	api.HandleFunc("GET /api/summary", s.handleSummary)

	var apiHandler http.Handler = api
	if s.gate != nil {
		apiHandler = s.gate.RequireAuthForMutations(api)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /auth/google", s.handleGoogleLogin)
	mux.HandleFunc("GET "+auth.CallbackPath, s.handleGoogleCallback)
	mux.HandleFunc("GET /auth/verify", s.handleVerify)
	mux.HandleFunc("GET /auth/user", s.handleUser)
	mux.HandleFunc("GET /auth/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Route not found").Write(w)
	})
	return mux
}

// middleware wraps h, outermost first: trace, request logger, security
// headers, suspicious request detection, CORS, rate limiting.
func (s *Server) middleware(h http.Handler, cfg Config) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 && s.clientURL != "" {
		origins = []string{s.clientURL}
	}

	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(h)
	h = cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", trace.RequestIDHeader},
		ExposedHeaders:   []string{trace.RequestIDHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.RequestIDMiddleware(trace.RequestIDFromRequest)(h)
	h = log.Middleware(s.logger)(h)
	return s.tracer.Middleware(h)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).Warn("Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
}

// Shutdown stops background routines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
