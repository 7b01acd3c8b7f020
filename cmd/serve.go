package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/bulk"
	"github.com/sells-group/prospect-enricher/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for enrichment and imports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		api := server.New(server.Deps{
			Enricher:    env.Orchestrator,
			Bulk:        env.Bulk,
			Imports:     env.Imports,
			Store:       env.Store,
			ImportToken: cfg.Import.ContinuationToken,
			LeaseTTL:    cfg.Enrich.LeaseTTL(),
		}, cfg.Server)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		// No WriteTimeout: bulk responses stream for the life of the job.
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if mins := cfg.Bulk.StaleLeaseMins; mins > 0 {
			go sweepLoop(ctx, env.Reconciler, time.Duration(mins)*time.Minute)
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// sweepLoop settles prospects left in enriching by a crashed process.
func sweepLoop(ctx context.Context, r *bulk.Reconciler, olderThan time.Duration) {
	t := time.NewTicker(olderThan)
	defer t.Stop()
	for {
		n, err := r.SweepStale(ctx, olderThan)
		if err != nil && ctx.Err() == nil {
			zap.L().Warn("stale lease sweep failed", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("settled stale prospects", zap.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
