package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docsynth/internal/api"
	"docsynth/internal/auth"
	"docsynth/internal/redis"
	"docsynth/internal/synthesis"
	"docsynth/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, background refresh workers and the stale-job sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.newService(ctx)
	if err != nil {
		return err
	}
	dispatcher := worker.NewDispatcher(refreshHandler(svc), worker.DispatcherConfig{
		Workers:   a.cfg.BasicConfig.WorkerCount,
		QueueSize: a.cfg.BasicConfig.QueueSize,
	})
	sweeper := synthesis.NewSweeper(a.store, a.jobCache, a.cfg.SweepInterval(), a.cfg.StaleJobAge())
	authService := auth.NewService(a.cfg.BasicConfig.APITokens)
	if !authService.Enabled() {
		log.Printf("serve: no api_tokens configured, /api is open")
	}

	handlers := api.NewHandler(svc, a.store, authService, dispatcher, a.jobCache)
	router := gin.Default()
	handlers.RegisterRoutes(router)
	server := &http.Server{Addr: a.cfg.BasicConfig.ServerAddress, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("serve: listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		return a.jobCache.Listen(gctx, func(ev redis.JobEvent) {
			log.Printf("serve: job %s for %s/%s is %s", ev.JobID, ev.TenantID, ev.DocumentType, ev.Status)
		})
	})
	return g.Wait()
}

// refreshHandler runs a queued refresh. Empty source sets are skipped rather than reported.
func refreshHandler(svc *synthesis.Service) worker.Handler {
	return func(ctx context.Context, task worker.Task) error {
		res, err := svc.Synthesize(ctx, synthesis.Request{
			TenantID:     task.TenantID,
			DocumentType: task.DocumentType,
			Force:        task.Force,
		})
		if err != nil {
			var empty *synthesis.EmptySourceSetError
			if errors.As(err, &empty) {
				log.Printf("worker: %s/%s has no usable sources, skipped", task.TenantID, task.DocumentType)
				return nil
			}
			return err
		}
		if res.Skipped {
			log.Printf("worker: %s/%s unchanged (document %s)", task.TenantID, task.DocumentType, res.DocumentID)
		}
		return nil
	}
}
