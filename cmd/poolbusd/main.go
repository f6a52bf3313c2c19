// Command poolbusd runs the RS-485 pool-equipment bus master: it opens
// the configured TTY, drives the probe/work scheduler over an epoll
// reactor, and optionally serves Prometheus metrics (spec.md §§4-8).
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lakeside/poolbus/internal/config"
	"github.com/lakeside/poolbus/internal/engine"
	"github.com/lakeside/poolbus/internal/metrics"
	"github.com/lakeside/poolbus/internal/reactor"
	"github.com/lakeside/poolbus/internal/serial"
	"github.com/lakeside/poolbus/internal/slave"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetLevel(cfg.LogLevel)
	entry := logrus.NewEntry(log)

	port, err := serial.Open(cfg.TTYPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.TTYPath, err)
	}
	defer port.Close()

	r, err := reactor.New()
	if err != nil {
		return fmt.Errorf("creating reactor: %w", err)
	}
	defer r.Close()

	var m engine.Metrics
	if cfg.MetricsAddr != "" {
		collector := metrics.New()
		prometheus.MustRegister(collector)
		m = collector

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				entry.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	e, err := engine.New(r, port, cfg.RegistrySize, entry, m)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	if _, err := e.Registry().Add(0x68, slave.NewHeater(entry)); err != nil {
		return fmt.Errorf("registering heater: %w", err)
	}
	if _, err := e.Registry().Add(0x01, slave.NewPanel(entry)); err != nil {
		return fmt.Errorf("registering panel: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		entry.Info("shutting down")
		r.Stop(nil)
	}()

	e.Start()
	entry.WithField("tty", cfg.TTYPath).Info("bus master running")
	return r.Run()
}
