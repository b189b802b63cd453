// Command xmrgatewayd runs the payment gateway's Scanner Loop and,
// optionally, its REST+WebSocket adapter — the daemon entrypoint, in the
// same shape as dcrlnd's own lnd binary: parse config, wire up logging,
// build the engine, run until signaled to stop.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xmrgateway/xmrgateway"
	"github.com/xmrgateway/xmrgateway/callbackqueue"
	"github.com/xmrgateway/xmrgateway/chainrpc/jsonrpc"
	"github.com/xmrgateway/xmrgateway/internal/httpapi"
	"github.com/xmrgateway/xmrgateway/monitoring"
	"github.com/xmrgateway/xmrgateway/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "xmrgatewayd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logWriter, err := setupLogging(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	xmrgateway.SetupLoggers(logWriter)
	logWriter.SetLogLevels(cfg.LogLevel)

	viewKeyHex := os.Getenv("PRIVATE_VIEWKEY")
	if viewKeyHex == "" {
		return fmt.Errorf("PRIVATE_VIEWKEY environment variable must be set")
	}

	store := storage.NewMemDB()

	builder := xmrgateway.NewBuilder(viewKeyHex, cfg.Wallet.PrimaryAddress, store).
		AccountIndex(cfg.Wallet.AccountIndex).
		DeleteExpired(cfg.Database.DeleteExpired).
		ScanInterval(time.Duration(cfg.Daemon.ScanIntervalMs) * time.Millisecond)

	if cfg.Wallet.RestoreHeight > 0 {
		builder = builder.InitialHeight(cfg.Wallet.RestoreHeight)
	}

	daemonOpts := []jsonrpc.Option{}
	if cfg.Daemon.RPCUser != "" {
		daemonOpts = append(daemonOpts, jsonrpc.WithDigestAuth(cfg.Daemon.RPCUser, cfg.Daemon.RPCPass))
	}
	builder = builder.DaemonURL(cfg.Daemon.URL, daemonOpts...)

	if cfg.Callback.QueueSize > 0 || cfg.Callback.Workers > 0 || cfg.Callback.RatePerSecond > 0 {
		builder = builder.Callback(callbackqueue.Config{
			QueueSize:     cfg.Callback.QueueSize,
			Workers:       cfg.Callback.Workers,
			RatePerSecond: cfg.Callback.RatePerSecond,
			Policy:        callbackqueue.DefaultPolicy(),
		})
	}

	var metrics *monitoring.Metrics
	if cfg.HTTP.MetricsEnabled {
		metrics = monitoring.New()
		builder = builder.Metrics(metrics)
	}

	gw, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	if err := gw.Run(); err != nil {
		return fmt.Errorf("failed to start scanner: %w", err)
	}
	defer gw.Stop()

	var httpServer *http.Server
	if !cfg.HTTP.Disable {
		httpServer, err = startHTTPServer(cfg, gw, metrics)
		if err != nil {
			return err
		}
		defer httpServer.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	return nil
}

func startHTTPServer(cfg *config, gw *xmrgateway.Gateway, metrics *monitoring.Metrics) (*http.Server, error) {
	var auth *httpapi.MacaroonAuth
	if cfg.HTTP.MacaroonKeyHex != "" {
		key, err := hex.DecodeString(cfg.HTTP.MacaroonKeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid http.macaroon-key: %w", err)
		}
		auth = httpapi.NewMacaroonAuth(key)
	} else {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate a macaroon root key: %w", err)
		}
		auth = httpapi.NewMacaroonAuth(key)
	}

	var metricsHandler http.Handler
	if metrics != nil {
		metricsHandler = promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})
	}

	server := httpapi.New(gw.HTTPAPI(), auth, metricsHandler)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: server,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "xmrgatewayd: http server: %v\n", err)
		}
	}()

	return httpServer, nil
}
