package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MalithGihan/steelminer/internal/deps"
	"github.com/MalithGihan/steelminer/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve paper ingestion and extraction over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		s := &server.Server{
			Store:     a.store,
			Loader:    a.loader,
			Extractor: a.extractor,
			Runner:    deps.Exec{},
			Gatherer:  a.registry,
			Log:       logger,
		}
		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           s.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
		logger.Info("steelminer listening", zap.String("addr", srv.Addr), zap.String("data", cfg.DataRoot))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that Java, Poppler and Tesseract are on PATH",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctor(cmd, deps.Exec{})
	},
}

func doctor(cmd *cobra.Command, r deps.Runner) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rep := deps.Check(ctx, r)
	out := cmd.OutOrStdout()
	for _, s := range rep.Tools {
		if s.Available {
			fmt.Fprintf(out, "ok       %-10s %s (%s)\n", s.Name, s.Version, s.Path)
			continue
		}
		fmt.Fprintf(out, "missing  %-10s %s: %s\n", s.Name, s.Package, s.Hint)
	}
	if cfg.TabulaJar == "" {
		fmt.Fprintln(out, "note     TABULA_JAR is not set, tabula table extraction is disabled")
	}
	if missing := rep.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", deps.ErrToolMissing, strings.Join(missing, ", "))
	}
	return nil
}
