// SPDX-License-Identifier: MIT

// Command daemon runs the projection display: it scans the media
// library, loads the warp masks, subscribes to the command topic and
// drives the render loop until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kschult4/Halloween-2025/internal/app"
	"github.com/kschult4/Halloween-2025/internal/config"
	xglog "github.com/kschult4/Halloween-2025/internal/log"
	"github.com/kschult4/Halloween-2025/internal/render"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "config/settings.json", "path to settings file")
	metricsAddr := flag.String("metrics", "", "expose Prometheus metrics on this address (e.g. :9090)")
	rawOutput := flag.Bool("stdout", false, "write raw RGB24 frames to stdout (pipe to ffplay)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	xglog.Configure(xglog.Config{Level: cfg.LogLevel})
	logger := xglog.WithComponent("main")

	var out render.Output = render.Discard{}
	if *rawOutput {
		out = render.NewWriter(os.Stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, out)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "main.startup_failed").
			Msg("daemon could not start")
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			logger.Info().
				Str("event", "main.metrics").
				Str("addr", *metricsAddr).
				Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().
			Err(err).
			Str("event", "main.run_failed").
			Msg("daemon exited with error")
	}
}
