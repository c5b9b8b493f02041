package handler

import (
	"net/http"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/infra/observability"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract for the back-office and customer portals.
func NewRouter(bankSvc *service.BankService, authSvc *service.AuthService, metrics *observability.Metrics, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(bankSvc, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Auth (no token required for login/refresh)
		r.Post("/auth/login", loginHandler(authSvc, logger))
		r.Post("/auth/refresh", refreshHandler(authSvc, logger))

		// Everything else requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))

			r.Post("/auth/logout", logoutHandler(authSvc, logger))

			// Accounts
			r.Get("/accounts", listAccountsHandler(bankSvc, logger))
			r.Get("/accounts/{accountId}", getAccountHandler(bankSvc, logger))
			r.Get("/accounts/{accountId}/transactions", listAccountTransactionsHandler(bankSvc, logger))
			r.With(RequireRole(domain.RoleAdmin, domain.RoleTeller)).
				Post("/accounts", createAccountHandler(bankSvc, logger))

			// Customer-scoped views for the portals
			r.Route("/customers/{customerId}", func(r chi.Router) {
				r.Use(RequireCustomerAccess)

				r.Get("/accounts", listAccountsHandler(bankSvc, logger))
				r.Get("/accounts/{accountId}", getAccountHandler(bankSvc, logger))
				r.Get("/transactions", listCustomerTransactionsHandler(bankSvc, logger))
				r.Get("/transactions/summary", transactionsSummaryHandler(bankSvc, logger))
				r.Get("/insights", getInsightsHandler(bankSvc, logger))
				r.Get("/tickets", listTicketsHandler(bankSvc, logger))
			})

			// Transfers
			r.Post("/transfers", createTransferHandler(bankSvc, logger))

			// Transactions
			r.Get("/transactions/summary", transactionsSummaryHandler(bankSvc, logger))

			// Insights
			r.Get("/insights", getInsightsHandler(bankSvc, logger))

			// Support tickets
			r.Post("/tickets", createTicketHandler(bankSvc, logger))
			r.Get("/tickets", listTicketsHandler(bankSvc, logger))
			r.With(RequireRole(domain.RoleAdmin, domain.RoleTeller)).
				Patch("/tickets/{ticketId}/status", updateTicketStatusHandler(bankSvc, logger))

			// Back-office only
			r.With(RequireRole(domain.RoleAdmin)).
				Get("/audit", listAuditEventsHandler(bankSvc, logger))
			r.With(RequireRole(domain.RoleAdmin, domain.RoleTeller)).
				Get("/metrics/transfers", transferMetricsHandler(metrics, logger))
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		status := "healthy"
		storeStatus := "unknown"
		var latencyMs int64

		if bankSvc != nil {
			start := time.Now()
			_, err := bankSvc.ListAccounts(ctx, "health-check")
			latencyMs = time.Since(start).Milliseconds()
			storeStatus = "healthy"
			if err != nil {
				storeStatus = "degraded"
				status = "degraded"
				logger.Warn("healthz: store check failed", zap.Error(err))
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status": status,
			"store": map[string]any{
				"status":     storeStatus,
				"latency_ms": latencyMs,
			},
			"checked_at": time.Now().Format(time.RFC3339),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
