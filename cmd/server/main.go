package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/clabconsole/clabconsole-backend/internal/api/middleware"
	"github.com/clabconsole/clabconsole-backend/internal/api/rest"
	"github.com/clabconsole/clabconsole-backend/internal/api/websocket"
	"github.com/clabconsole/clabconsole-backend/internal/config"
	"github.com/clabconsole/clabconsole-backend/internal/k8s"
	"github.com/clabconsole/clabconsole-backend/internal/layout"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/logger"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/tracing"
	"github.com/clabconsole/clabconsole-backend/internal/service"
	"github.com/clabconsole/clabconsole-backend/internal/topology"
)

const serviceName = "clabconsole-backend"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config.yaml (default: search /etc/clabconsole, $HOME/.clabconsole, .)")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	log.Info("configuration loaded",
		"port", cfg.Port,
		"kube_context", cfg.KubeContext,
		"visualize_timeout", cfg.VisualizeTimeout(),
		"k8s_timeout", cfg.K8sTimeout(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(serviceName, cfg.TracingEndpoint, cfg.TracingSamplingRate)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	client, err := k8s.NewClient(cfg.KubeconfigPath, cfg.KubeContext)
	if err != nil {
		return fmt.Errorf("create kubernetes client: %w", err)
	}
	client.SetTimeout(cfg.K8sTimeout())
	if cfg.K8sRateLimitPerSec > 0 {
		client.SetLimiter(rate.NewLimiter(rate.Limit(cfg.K8sRateLimitPerSec), cfg.K8sRateLimitBurst))
	}
	if err := client.TestConnection(ctx); err != nil {
		// the console still serves and reports the cluster as degraded on /health
		log.Warn("cluster not reachable at startup", "error", err)
	}

	engine := topology.NewEngine(client, layout.NewAdapter(nil), log)
	sessions := service.NewSessionTracker(cfg.SessionMax, cfg.SessionTTL())
	visualizeService := service.NewVisualizeService(engine, sessions, cfg.VisualizeTimeout(), log)

	router := mux.NewRouter()
	router.Use(middleware.StructuredLog)
	router.Use(middleware.Recover(log))

	handler := rest.NewHandler(client, visualizeService, log)
	router.HandleFunc("/health", handler.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	rest.SetupRoutes(apiRouter, handler)

	wsHandler := websocket.NewHandler(ctx, visualizeService, cfg.AllowedOrigins, log)
	router.HandleFunc("/ws/visualize", wsHandler.ServeWS).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.ResponseRequestIDHeader},
		ExposedHeaders:   []string{middleware.ResponseRequestIDHeader, middleware.TraceIDHeader, "Content-Disposition"},
		AllowCredentials: true,
	})
	chain := middleware.RequestID(
		middleware.Tracing(
			middleware.SecureHeaders(
				middleware.MaxBodySize(cfg.MaxBodyBytes)(router))))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           c.Handler(chain),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.RequestTimeoutSec) * time.Second,
		// visualize responses may take the whole pipeline budget
		WriteTimeout: time.Duration(cfg.RequestTimeoutSec)*time.Second + cfg.VisualizeTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening",
			"addr", srv.Addr,
			"api", "/api/v1",
			"websocket", "/ws/visualize",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", "error", err)
	}
	// websocket connections are hijacked and outlive Shutdown
	cancel()
	wsHandler.Wait()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown failed", "error", err)
	}
	log.Info("server exited gracefully")
	return nil
}
