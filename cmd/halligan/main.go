package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"halligan-rms/api"
	"halligan-rms/config"
	"halligan-rms/core/appbootstrap"
	"halligan-rms/core/store"
	"halligan-rms/core/utils"
	"halligan-rms/core/workbook"
)

func main() {
	configPath := flag.String("config", "", "path to config yaml (optional)")
	flag.Parse()

	logger := utils.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("config load failed: %v", err)
		os.Exit(1)
	}

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		logger.Errorf("database open failed: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.ApplyMigrations(ctx, db, cfg.DBDriver, logger); err != nil {
		logger.Errorf("migrations failed: %v", err)
		os.Exit(1)
	}

	wb := workbook.NewStore(cfg.WorkbookPath, logger)
	if _, statErr := os.Stat(cfg.WorkbookPath); statErr != nil && os.IsNotExist(statErr) {
		logger.Printf("no workbook at %s, starting empty", cfg.WorkbookPath)
		wb.Init()
	} else if err := wb.Load(); err != nil {
		logger.Errorf("workbook load failed: %v", err)
		os.Exit(1)
	}

	rt, err := appbootstrap.ComposeRuntime(cfg, db, wb, logger)
	if err != nil {
		logger.Errorf("compose failed: %v", err)
		os.Exit(1)
	}
	if err := appbootstrap.EnsureDefaultAdmin(ctx, rt.Users, cfg, logger); err != nil {
		logger.Errorf("default admin bootstrap failed: %v", err)
		os.Exit(1)
	}
	if err := rt.Autosave.Start(); err != nil {
		logger.Errorf("autosave start failed: %v", err)
		os.Exit(1)
	}

	server := api.NewServer(cfg, rt.ServerDeps, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	if err := rt.Autosave.Stop(shutdownCtx); err != nil {
		logger.Errorf("autosave stop: %v", err)
	}
	logger.Printf("bye")
}
