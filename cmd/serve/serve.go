// Package serve implements the serve command, running the gallery API
// server until interrupted.
package serve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/tphakala/lensstory/internal/api"
	"github.com/tphakala/lensstory/internal/conf"
	"github.com/tphakala/lensstory/internal/gallery"
	"github.com/tphakala/lensstory/internal/logging"
	"github.com/tphakala/lensstory/internal/store"
	"github.com/tphakala/lensstory/internal/vision"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gallery HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVarP(&settings.WebServer.Port, "port", "p", settings.WebServer.Port, "Port for the HTTP server")

	return cmd
}

func run(ctx context.Context, settings *conf.Settings) error {
	logger := logging.ForService("serve")

	ds := store.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Error("Failed to close datastore", "error", err)
		}
	}()
	logger.Info("Datastore ready", "backend", store.BackendName(settings))

	visionClient, err := vision.NewClient(vision.Config{
		APIKey:   settings.Vision.APIKey,
		BaseURL:  settings.Vision.Endpoint,
		Model:    settings.Vision.Model,
		Timeout:  settings.Vision.Timeout,
		CacheTTL: settings.Vision.CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vision client: %w", err)
	}

	g := gallery.New(ds, visionClient, settings)
	// Aborts any still-running background sequences once shutdown has
	// given them their settling window below.
	defer g.Shutdown()
	if err := g.Load(ctx); err != nil {
		return fmt.Errorf("failed to load gallery: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	controller, err := api.New(e, g, ds, settings)
	if err != nil {
		return fmt.Errorf("failed to initialize API: %w", err)
	}
	defer controller.Shutdown()

	errChan := make(chan error, 1)
	go func() {
		addr := ":" + settings.WebServer.Port
		logger.Info("HTTP server starting", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-quit:
		logger.Info("Shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Shutting down", "reason", "context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	// Let in-flight enrichments settle so their durable updates land.
	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("Timed out waiting for in-flight enrichment")
	}

	return nil
}
