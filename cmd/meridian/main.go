package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/purchasereturns"
	"github.com/meridian-erp/meridian-erp/internal/purchasing"
	"github.com/meridian-erp/meridian-erp/internal/returns"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := auth.NewSessionManager(redisClient, cfg.SessionTTL)
	authService := auth.NewService(auth.NewRepository(pool), sessionManager)
	authHandler := auth.NewHandler(logger, authService)

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	numberingGen := numbering.NewGenerator(pool)
	ledger := inventory.NewLedger()
	poster := accounting.NewPoster()

	masterdataService := masterdata.NewService(masterdata.NewRepository(pool))
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), ledger, masterdataService, auditLogger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	purchasingService := purchasing.NewService(purchasing.NewRepository(pool), ledger, poster, masterdataService, numberingGen, auditLogger, idempotencyStore)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	purchaseReturnsService := purchasereturns.NewService(purchasereturns.NewRepository(pool), purchasingService, ledger, poster, numberingGen, auditLogger, idempotencyStore)
	purchaseReturnsHandler := purchasereturns.NewHandler(logger, purchaseReturnsService)

	salesService := sales.NewService(sales.NewRepository(pool), ledger, poster, masterdataService, numberingGen, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService)

	returnsService := returns.NewService(returns.NewRepository(pool), salesService, ledger, poster, numberingGen, auditLogger, idempotencyStore)
	returnsHandler := returns.NewHandler(logger, returnsService)

	accountingService := accounting.NewService(accounting.NewRepository(pool))
	accountingHandler := accounting.NewHandler(logger, accountingService)

	router := app.NewRouter(app.RouterParams{
		Logger:                 logger,
		Config:                 cfg,
		AuthService:            authService,
		AuthHandler:            authHandler,
		MasterDataHandler:      masterdataHandler,
		InventoryHandler:       inventoryHandler,
		PurchasingHandler:      purchasingHandler,
		PurchaseReturnsHandler: purchaseReturnsHandler,
		SalesHandler:           salesHandler,
		ReturnsHandler:         returnsHandler,
		AccountingHandler:      accountingHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
