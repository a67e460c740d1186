package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivstefano/personal-finance-manager/internal/amqp"
	"github.com/ivstefano/personal-finance-manager/internal/cache"
	"github.com/ivstefano/personal-finance-manager/internal/cli"
	"github.com/ivstefano/personal-finance-manager/internal/core"
	apphttp "github.com/ivstefano/personal-finance-manager/internal/http"
	"github.com/ivstefano/personal-finance-manager/internal/ledger"
	"github.com/ivstefano/personal-finance-manager/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitStore(logger, cfg)
	defer store.Close()

	// AMQP is optional: transactions keep posting without it, only the
	// ledger events stop flowing.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			defer amqpClient.Close()
		}
	}

	categoryCache := cache.NewLRUCache[[]core.Category](256, 5*time.Minute)
	cacheManager := cache.NewManager()
	cacheManager.Register(categoryCache)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	engine := ledger.NewEngine(store)
	accounts := services.NewAccountService(store)
	transactions := services.NewTransactionService(store, engine, amqpClient)
	categories := services.NewCategoryService(store, categoryCache)

	srv := apphttp.NewServer(":"+cfg.Port, accounts, transactions, categories)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting finman server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
