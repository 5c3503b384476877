package main

import (
	"banking-engine/internal/api"
	"banking-engine/internal/batch"
	"banking-engine/internal/config"
	"banking-engine/internal/domain/credit"
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/domain/loan"
	"banking-engine/internal/domain/savings"
	"banking-engine/internal/event"
	"banking-engine/internal/infrastructure/database/postgres"
	"banking-engine/internal/infrastructure/logging"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

func main() {
	cfg, logger := initializeApp()

	dbPool := initializeDatabase(cfg, logger)
	defer closeDatabase(dbPool, logger)

	rabbitMQConn := setupRabbitMQ(cfg, logger)
	dispatcher := initializeDispatcher(cfg, rabbitMQConn, logger)

	services := initializeServices(cfg, dbPool, dispatcher, logger)

	overdueJob := batch.NewOverdueJob(services.loanRepo, services.unit,
		cfg.Lending.LateFeeRate, cfg.Lending.DefaultOverdueThreshold, dispatcher, logger)
	cronScheduler := startBatchJobs(cfg, logger, overdueJob)

	router := api.SetupRouter(services.savings, services.ledger, services.loans, services.credit, cfg, logger)

	srv, serverErrors, shutdownChan := startServer(cfg, router, logger)
	handleShutdown(srv, cronScheduler, rabbitMQConn, shutdownChan, serverErrors, logger)
}

func initializeApp() (*config.Config, *slog.Logger) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logger)
	slog.SetDefault(logger)
	logger.Info("Application starting...", "config_source", viper.ConfigFileUsed())

	return cfg, logger
}

func initializeDatabase(cfg *config.Config, logger *slog.Logger) *pgxpool.Pool {
	logger.Info("Initializing database connection pool...")
	dbPool, err := postgres.NewConnectionPool(context.Background(), cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	return dbPool
}

func closeDatabase(dbPool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("Closing database connection pool...")
	dbPool.Close()
}

func initializeDispatcher(cfg *config.Config, rabbitConn *amqp.Connection, logger *slog.Logger) event.Dispatcher {
	if rabbitConn == nil {
		return event.NewNoopDispatcher(logger)
	}
	dispatcher, err := event.NewRabbitMQDispatcher(rabbitConn, cfg.RabbitMQ.ExchangeName, logger)
	if err != nil {
		logger.Error("Failed to initialize RabbitMQ dispatcher, notifications disabled", "error", err)
		return event.NewNoopDispatcher(logger)
	}
	return dispatcher
}

type serviceSet struct {
	savings  savings.Service
	ledger   ledger.Service
	loans    loan.Service
	credit   credit.Service
	loanRepo loan.Repository
	unit     *postgres.UnitOfWork
}

func initializeServices(cfg *config.Config, dbPool *pgxpool.Pool, dispatcher event.Dispatcher, logger *slog.Logger) serviceSet {
	logger.Info("Initializing application components...")

	ledgerRepo := postgres.NewLedgerRepository(dbPool, logger)
	savingsRepo := postgres.NewSavingsRepository(dbPool, logger)
	creditRepo := postgres.NewCreditRepository(dbPool, logger)
	loanRepo := postgres.NewLoanRepository(dbPool, logger)
	directory := postgres.NewUserDirectory(dbPool, logger)
	unit := postgres.NewUnitOfWork(dbPool, logger)

	creditService := credit.NewService(creditRepo, unit, credit.Limits{
		Initial: cfg.Lending.InitialCreditLimit,
		Min:     cfg.Lending.MinCreditLimit,
		Max:     cfg.Lending.MaxCreditLimit,
	}, logger)

	savingsService := savings.NewService(savingsRepo, ledgerRepo, loanRepo, creditService, unit,
		tierTableFromConfig(cfg.Tiers), dispatcher, logger)

	ledgerService := ledger.NewService(ledgerRepo, savingsRepo, unit, logger)

	loanService := loan.NewService(loanRepo, savingsRepo, creditRepo, ledgerRepo, directory, unit,
		loan.ApprovalPolicy{
			AutoApproveLimit: cfg.Lending.AutoApproveLimit,
			AutoApproveScore: cfg.Lending.AutoApproveScore,
			MinCreditScore:   cfg.Lending.MinCreditScore,
		},
		rateTableFromConfig(cfg.Lending), dispatcher, logger)

	return serviceSet{
		savings:  savingsService,
		ledger:   ledgerService,
		loans:    loanService,
		credit:   creditService,
		loanRepo: loanRepo,
		unit:     unit,
	}
}

func tierTableFromConfig(tiers config.TiersConfig) savings.TierTable {
	table := make(savings.TierTable, len(tiers))
	for name, limits := range tiers {
		table[savings.Tier(name)] = savings.TierLimit{
			DailyDepositLimit:      limits.DailyDepositLimit,
			DailyWithdrawalLimit:   limits.DailyWithdrawalLimit,
			MonthlyWithdrawalLimit: limits.MonthlyWithdrawalLimit,
			InterestRate:           limits.InterestRate,
		}
	}
	return table
}

func rateTableFromConfig(lending config.LendingConfig) loan.RateTable {
	table := make(loan.RateTable, len(lending.TenorRates))
	for tenor, rate := range lending.TenorRates {
		months, err := strconv.Atoi(tenor)
		if err != nil {
			slog.Warn("Skipping invalid tenor key in rate table", "tenor", tenor)
			continue
		}
		table[months] = rate
	}
	return table
}

func startServer(cfg *config.Config, router http.Handler, logger *slog.Logger) (*http.Server, <-chan error, <-chan os.Signal) {
	logger.Info("Setting up HTTP server...", "port", cfg.Server.Port)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server listening on port %d", cfg.Server.Port))
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			serverErrors <- err
		} else {
			logger.Info("Server closed gracefully.")
			serverErrors <- nil
		}
	}()
	return srv, serverErrors, shutdownChan
}

func handleShutdown(srv *http.Server, cronScheduler *cron.Cron, rabbitConn *amqp.Connection,
	shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) {
	logger.Info("Shutdown handler started. Waiting for signal or server error...")

	triggerReason := waitForShutdownTrigger(shutdownChan, serverErrors, logger)

	logger.Info("Starting graceful shutdown...", "trigger", triggerReason)

	stopCronScheduler(cronScheduler, logger)
	closeRabbitMQConnection(rabbitConn, logger)
	shutdownHTTPServer(srv, serverErrors, logger)

	logger.Info("Application shutdown process complete.")
}

func waitForShutdownTrigger(shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) string {
	select {
	case sig := <-shutdownChan:
		logger.Info("Shutdown signal received.", "signal", sig.String())
		return "signal: " + sig.String()
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server exited unexpectedly before signal", "error", err)
			os.Exit(1)
		}
		logger.Info("Server goroutine finished before signal.", "error", err)
		return "server exited"
	}
}

func stopCronScheduler(cronScheduler *cron.Cron, logger *slog.Logger) {
	logger.Info("Stopping cron scheduler...")
	cronCtx := cronScheduler.Stop()
	select {
	case <-cronCtx.Done():
		logger.Info("Cron scheduler stopped gracefully.")
	case <-time.After(15 * time.Second):
		logger.Warn("Cron scheduler shutdown timed out.")
	}
}

func closeRabbitMQConnection(rabbitConn *amqp.Connection, logger *slog.Logger) {
	if rabbitConn == nil {
		logger.Info("RabbitMQ connection was not established, skipping close.")
		return
	}
	if rabbitConn.IsClosed() {
		logger.Info("RabbitMQ connection already closed, skipping close.")
		return
	}
	logger.Info("Closing RabbitMQ connection...")
	if err := rabbitConn.Close(); err != nil {
		logger.Error("Failed to close RabbitMQ connection gracefully", slog.Any("error", err))
	} else {
		logger.Info("RabbitMQ connection closed.")
	}
}

func shutdownHTTPServer(srv *http.Server, serverErrors <-chan error, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server graceful shutdown failed", "error", err)
		} else {
			logger.Info("HTTP server shutdown initiated.")
		}
		if err := srv.Close(); err != nil {
			logger.Error("HTTP server forced close failed", "error", err)
		}
	} else {
		logger.Info("HTTP server gracefully stopped.")
	}

	logger.Info("Waiting for server goroutine to confirm exit...")
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Server goroutine exited with unexpected error after shutdown", "error", err)
		} else {
			logger.Info("Server goroutine confirmed exit.")
		}
	case <-time.After(5 * time.Second):
		logger.Warn("Timed out waiting for server goroutine confirmation.")
	}
}

func startBatchJobs(cfg *config.Config, logger *slog.Logger, overdueJob *batch.OverdueJob) *cron.Cron {
	logger.Info("Initializing batch job scheduler...")
	c := cron.New()

	scheduleSpec := cfg.Batch.OverdueSchedule
	if scheduleSpec == "" {
		scheduleSpec = "0 1 * * *"
		logger.Warn("Overdue sweep schedule not configured, using default", "schedule", scheduleSpec)
	}
	jobTimeout := cfg.Batch.OverdueTimeout
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}

	jobID, err := c.AddJob(scheduleSpec, cron.FuncJob(func() {
		jobLogger := logger.With("job_name", "OverdueSweep")
		jobLogger.Info("Cron triggered: Running overdue repayment sweep.")

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if runErr := overdueJob.Run(ctx); runErr != nil {
			jobLogger.Error("Overdue sweep finished with error", slog.Any("error", runErr))
		} else {
			jobLogger.Info("Overdue sweep finished successfully.")
		}
	}))

	if err != nil {
		logger.Error("Failed to schedule overdue sweep", "schedule", scheduleSpec, slog.Any("error", err))
	} else {
		logger.Info("Scheduled overdue sweep", "schedule", scheduleSpec, "job_id", jobID)
	}

	c.Start()
	logger.Info("Cron scheduler started.")
	return c
}

func connectRabbitMQ(uri string, logger *slog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	retryCount := 5
	for i := 1; i <= retryCount; i++ {
		conn, err = amqp.Dial(uri)
		if err == nil {
			logger.Info("Successfully connected to RabbitMQ")

			go func() {
				blockChan := conn.NotifyBlocked(make(chan amqp.Blocking))
				closeChan := conn.NotifyClose(make(chan *amqp.Error))

				select {
				case b := <-blockChan:
					logger.Warn("RabbitMQ Connection Blocked", "reason", b.Reason)
				case e := <-closeChan:
					logger.Error("RabbitMQ Connection Closed", slog.Any("error", e))
				}
			}()

			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ, retrying...",
			slog.Int("attempt", i),
			slog.Int("max_attempts", retryCount),
			slog.Any("error", err),
		)
		time.Sleep(time.Duration(i*2) * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", retryCount, err)
}

// setupRabbitMQ returns nil when messaging is disabled or unreachable; the
// engine then falls back to the no-op dispatcher.
func setupRabbitMQ(cfg *config.Config, logger *slog.Logger) *amqp.Connection {
	if !cfg.RabbitMQ.Enabled {
		logger.Info("RabbitMQ messaging disabled by configuration.")
		return nil
	}

	uri := fmt.Sprintf("amqp://%s:%d", cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)
	if cfg.RabbitMQ.Username != "" && cfg.RabbitMQ.Password != "" {
		uri = fmt.Sprintf("amqp://%s:%s@%s:%d", cfg.RabbitMQ.Username, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)
	}

	conn, err := connectRabbitMQ(uri, logger)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ, notifications disabled", "error", err)
		return nil
	}
	return conn
}
