package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/portunus-id/portunus/httpapi"
	"github.com/portunus-id/portunus/middleware"
)

const shutdownGrace = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var trustProxy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, trustProxy)
		},
	}
	cmd.Flags().BoolVar(&trustProxy, "trust-proxy", false, "take the client IP from X-Forwarded-For")
	return cmd
}

func (a *app) serve(ctx context.Context, trustProxy bool) error {
	s := a.settings
	rt, err := newRuntime(ctx, s, a.log)
	if err != nil {
		return err
	}
	defer rt.Close()

	report := rt.engine.SecurityReport()
	a.log.Info("security posture",
		zap.Bool("production", report.ProductionMode),
		zap.String("signing", report.SigningAlgorithm),
		zap.Bool("refresh_rotation", report.RefreshRotationEnabled),
		zap.Bool("lockout_needs_reset", report.LockoutNeedsReset))
	for _, w := range report.Warnings {
		a.log.Warn("security posture", zap.String("warning", w))
	}

	cookies := httpapi.DefaultCookies()
	cookies.Secure = !s.Debug
	cookies.SameSite = httpapi.ParseSameSite(s.CookieSameSite)
	cookies.MaxAge = s.SessionAge

	api, err := httpapi.New(httpapi.Config{
		Engine:         rt.engine,
		Log:            a.log,
		Cookies:        cookies,
		AllowedOrigins: s.AllowedOrigins,
		Throttle: middleware.ThrottleConfig{
			RequestsPerSecond: s.RequestsPerSecond,
			Burst:             s.RequestBurst,
		},
		TrustProxy: trustProxy,
		HSTS:       s.Production,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              s.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", zap.String("addr", s.HTTPAddr), zap.Bool("production", s.Production))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
