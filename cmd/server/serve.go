package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fuomag9/swasthya-link/internal/api"
	"github.com/fuomag9/swasthya-link/internal/jobs"
	"github.com/fuomag9/swasthya-link/internal/notification"
	"github.com/fuomag9/swasthya-link/internal/oauth"
	"github.com/fuomag9/swasthya-link/internal/wearable"
	"github.com/fuomag9/swasthya-link/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and background jobs",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(a.cfg.JWTSecret, a.cfg.CORSOrigins, log)
	go hub.Run(ctx)

	dispatcher := notification.NewDispatcher(a.db, a.cfg.Alerts, log)
	dispatcher.SetBroadcaster(hub)

	sessions := oauth.NewGormSessionStore(a.db)
	mgr, err := a.wearableManager(sessions)
	if err != nil {
		return err
	}

	var syncer *wearable.Syncer
	var jobSyncer jobs.HeartRateSyncer
	if mgr != nil {
		syncer = wearable.NewSyncer(mgr, a.db, dispatcher, hub, log)
		jobSyncer = syncer
	}

	scheduler := jobs.NewScheduler(a.db, a.cfg.Jobs, dispatcher, sessions, jobSyncer, log)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job scheduler: %w", err)
	}
	defer scheduler.Stop()

	router := api.NewRouter(ctx, api.Deps{
		Config:      a.cfg,
		DB:          a.db,
		Log:         log,
		Alerts:      dispatcher,
		Scheduler:   scheduler,
		Broadcaster: hub,
		WebSocket:   hub.HandleWebSocket,
		Wearable:    mgr,
		Syncer:      syncer,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.Int("port", a.cfg.Port), zap.String("environment", a.cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited")
	return nil
}
