package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/pavelanni/mockinterview/internal/handler"
	appI18n "github.com/pavelanni/mockinterview/internal/i18n"
	"github.com/pavelanni/mockinterview/internal/model"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP interview API",
		RunE:  runServe,
	}
	addBackendFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.Duration("session-ttl", 2*time.Hour, "Close sessions idle for longer than this (0 disables)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /interview)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg, err := loadBackendConfig(v)
	if err != nil {
		return err
	}
	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	// A nil *store.Store must not become a non-nil interface.
	var bank handler.QuestionBank
	if b.bank != nil {
		bank = b.bank
	}

	ttl := v.GetDuration("session-ttl")
	reg := handler.NewRegistry(ttl)
	h, err := handler.New(b.client, bank, reg, handler.Config{
		Roles:        b.roles,
		CallTimeout:  cfg.CallTimeout,
		Capabilities: model.DefaultCapabilities(),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(cfg.Lang))

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	janitorInterval := time.Minute
	if ttl > 0 && ttl < janitorInterval {
		janitorInterval = ttl
	}
	janitorDone := make(chan struct{})
	go func() {
		reg.Run(ctx, janitorInterval)
		close(janitorDone)
	}()

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", addr,
		"backend", cfg.Backend,
		"lang", cfg.Lang,
		"call_timeout", cfg.CallTimeout,
		"session_ttl", ttl,
		"base_path", basePath,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stop()
		<-janitorDone
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout+5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	<-janitorDone
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return err
}
