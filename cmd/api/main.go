package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chamaflow/fundcore/internal/config"
	"github.com/chamaflow/fundcore/internal/handler"
	"github.com/chamaflow/fundcore/internal/logging"
	"github.com/chamaflow/fundcore/internal/middleware"
	"github.com/chamaflow/fundcore/internal/repository"
	"github.com/chamaflow/fundcore/internal/service"
	"github.com/chamaflow/fundcore/internal/service/allocator"
	"github.com/chamaflow/fundcore/internal/service/disbursement"
	"github.com/chamaflow/fundcore/internal/service/schedule"
	"github.com/chamaflow/fundcore/internal/service/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("fundcore-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	funds := repository.NewFundRepository(db)
	members := repository.NewMemberRepository(db)
	loans := repository.NewLoanRepository(db)
	obligations := repository.NewObligationRepository(db)
	ledger := repository.NewLedgerRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)
	settlements := repository.NewSettlementRepository(db)
	outbox := repository.NewOutboxRepository(db)

	allocatorSvc := allocator.NewService(obligations, loans, ledger, outbox, db)
	disbursementSvc := disbursement.NewService(loans, funds, members, ledger, outbox, db)
	scheduleSvc := schedule.NewGenerator(members, loans, obligations, funds, outbox, db)
	settlementSvc := settlement.NewService(members, ledger, loans, obligations, settlements, funds, outbox, db)

	dispatcher := service.NewDispatcher(outbox, service.NewLogPublisher(logger), logger,
		time.Duration(cfg.EventPollIntervalS)*time.Second)
	go dispatcher.Start(ctx)

	retention := service.NewRetentionSweeper(idempotency, logger,
		time.Duration(cfg.RetentionSweepIntervalS)*time.Second)
	go retention.Start(ctx)

	healthHandler := handler.NewHealthHandler(db)
	fundHandler := handler.NewFundHandler(funds, ledger, db)
	memberHandler := handler.NewMemberHandler(members)
	paymentHandler := handler.NewPaymentHandler(allocatorSvc)
	obligationHandler := handler.NewObligationHandler(obligations)
	loanHandler := handler.NewLoanHandler(disbursementSvc, loans)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	settlementHandler := handler.NewSettlementHandler(settlementSvc)

	authMW := middleware.Auth(cfg.GatewayJWTSecret)
	idemMW := middleware.Idempotency(idempotency, middleware.IdempotencyConfig{
		Retention:       time.Duration(cfg.IdempotencyRetentionDays) * 24 * time.Hour,
		InflightTimeout: time.Duration(cfg.IdempotencyInflightTimeoutS) * time.Second,
	})

	// Write endpoints run behind the idempotency gateway; administrative
	// jobs additionally require an admin or treasurer token.
	write := func(h http.HandlerFunc) http.Handler {
		return authMW(idemMW(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return authMW(middleware.RequireAdmin(idemMW(h)))
	}
	read := func(h http.HandlerFunc) http.Handler {
		return authMW(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.Handle("POST /api/v1/funds", authMW(http.HandlerFunc(fundHandler.Create)))
	mux.Handle("GET /api/v1/funds/{fund_id}", read(fundHandler.Get))
	mux.Handle("PUT /api/v1/funds/{fund_id}/config", admin(fundHandler.UpdateConfig))
	mux.Handle("GET /api/v1/funds/{fund_id}/ledger", read(fundHandler.Ledger))
	mux.Handle("GET /api/v1/funds/{fund_id}/balance", read(fundHandler.Balance))

	mux.Handle("POST /api/v1/funds/{fund_id}/members/sync", admin(memberHandler.Sync))
	mux.Handle("GET /api/v1/funds/{fund_id}/members", read(memberHandler.List))

	mux.Handle("POST /api/v1/funds/{fund_id}/payments", write(paymentHandler.Record))
	mux.Handle("GET /api/v1/funds/{fund_id}/obligations/{id}", read(obligationHandler.Get))
	mux.Handle("GET /api/v1/funds/{fund_id}/periods/{period}/obligations", read(obligationHandler.ListByPeriod))

	mux.Handle("POST /api/v1/funds/{fund_id}/loans", write(loanHandler.Request))
	mux.Handle("GET /api/v1/funds/{fund_id}/loans", read(loanHandler.List))
	mux.Handle("GET /api/v1/funds/{fund_id}/loans/{id}", read(loanHandler.Get))
	mux.Handle("POST /api/v1/funds/{fund_id}/loans/{id}/approve", admin(loanHandler.Approve))
	mux.Handle("POST /api/v1/funds/{fund_id}/loans/{id}/disburse", admin(loanHandler.Disburse))

	mux.Handle("POST /api/v1/funds/{fund_id}/periods/{period}/contributions", admin(scheduleHandler.GenerateContributions))
	mux.Handle("POST /api/v1/funds/{fund_id}/periods/{period}/repayments", admin(scheduleHandler.GenerateRepayments))
	mux.Handle("POST /api/v1/funds/{fund_id}/periods/{period}/close", admin(scheduleHandler.ClosePeriod))
	mux.Handle("POST /api/v1/funds/{fund_id}/sweeps/late", admin(scheduleHandler.SweepLate))
	mux.Handle("POST /api/v1/funds/{fund_id}/sweeps/overdue", admin(scheduleHandler.SweepOverdue))

	mux.Handle("GET /api/v1/funds/{fund_id}/settlement", read(settlementHandler.Report))
	mux.Handle("POST /api/v1/funds/{fund_id}/settlement/recalculate", admin(settlementHandler.Recalculate))
	mux.Handle("POST /api/v1/funds/{fund_id}/settlement/review", admin(settlementHandler.Review))
	mux.Handle("POST /api/v1/funds/{fund_id}/settlement/confirm", admin(settlementHandler.Confirm))

	root := middleware.Recovery(middleware.Tracing(middleware.Logging(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
