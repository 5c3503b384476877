package api

import (
	"banking-engine/internal/api/handler"
	mw "banking-engine/internal/api/middleware"
	"banking-engine/internal/config"
	"banking-engine/internal/domain/credit"
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/domain/loan"
	"banking-engine/internal/domain/savings"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/traceid"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(savingsService savings.Service, ledgerService ledger.Service, loanService loan.Service, creditService credit.Service, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(router, cfg, logger)
	setupMetricsEndpoint(router, cfg, logger)
	setupAccountRoutes(router, savingsService, ledgerService, logger)
	setupLoanRoutes(router, loanService, creditService, logger)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return router
}

func setupMiddleware(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(traceid.Middleware)
	router.Use(mw.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(mw.NewRateLimiterMiddleware(cfg.Server.RateLimit, logger).Middleware)
	router.Use(mw.MetricsMiddleware())
}

func setupMetricsEndpoint(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath)
	router.Handle(metricsPath, promhttp.Handler())
}

func setupAccountRoutes(router *chi.Mux, savingsService savings.Service, ledgerService ledger.Service, logger *slog.Logger) {
	h := handler.NewAccountHandler(savingsService, ledgerService, logger)

	router.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.OpenAccount)
		r.Route("/{accountID}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Delete("/", h.CloseAccount)
			r.Get("/balance", h.GetBalance)
			r.Post("/deposits", h.Deposit)
			r.Post("/withdrawals", h.Withdraw)
			r.Get("/transactions", h.GetStatement)
		})
	})
}

func setupLoanRoutes(router *chi.Mux, loanService loan.Service, creditService credit.Service, logger *slog.Logger) {
	loanHandler := handler.NewLoanHandler(loanService, logger)
	creditHandler := handler.NewCreditHandler(creditService, logger)

	router.Route("/loans", func(r chi.Router) {
		r.Post("/", loanHandler.RequestLoan)
		r.Route("/{loanID}", func(r chi.Router) {
			r.Get("/", loanHandler.GetLoan)
			r.Get("/schedule", loanHandler.GetSchedule)
			r.Post("/approve", loanHandler.ApproveLoan)
			r.Post("/reject", loanHandler.RejectLoan)
			r.Post("/disburse", loanHandler.DisburseLoan)
			r.Post("/repayments", loanHandler.MakeRepayment)
		})
	})

	router.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/loans", loanHandler.ListUserLoans)
		r.Get("/credit", creditHandler.GetFacility)
		r.Put("/credit/limit", creditHandler.UpdateCreditLimit)
	})
}
