package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"filegate/internal/adapters/localstorage"
	"filegate/internal/adapters/server"
	"filegate/internal/config"
	"filegate/internal/domain"
	"filegate/internal/usecases"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	host := flag.String("host", "", "listen host (default 0.0.0.0)")
	port := flag.Int("port", 0, "listen port (default 3000)")
	root := flag.String("root", "", "directory to serve (default current directory)")
	flag.Parse()

	cfg := config.LoadConfig(*configPath, config.Overrides{
		Host:     *host,
		Port:     *port,
		RootPath: *root,
	})
	setupLogging(cfg.Log)

	// корень должен уже существовать: создавать его за пользователя не будем,
	// опечатка в -root иначе молча раздаст пустую директорию.
	rootCtx, err := domain.NewRootContext(cfg.Storage.RootPath, cfg.File.MaxNameLength)
	if err != nil {
		logrus.Fatalf("Invalid storage root: %v", err)
	}

	fileStorage := localstorage.NewLocalStorageService(rootCtx, cfg.File.DirPermissions, cfg.File.FilePermissions)
	fileUsecase := usecases.NewFileManagementUseCase(fileStorage, cfg)
	handler := server.NewHandler(fileUsecase, cfg)

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr(),
		Handler:           server.NewRouter(handler, cfg.Routes),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}}
	if cfg.Metrics.Addr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           server.NewMetricsRouter(),
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logrus.Infof("Server running on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}

	// graceful shutdown: по сигналу или если один из серверов упал.
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logrus.Fatalf("Server error: %v", err)
	}
	logrus.Info("Server stopped gracefully")
}

func setupLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == config.LogFormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
