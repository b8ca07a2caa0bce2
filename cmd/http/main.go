package main

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/awmpietro/golang-typestate-order-check/internal/app"
	"github.com/awmpietro/golang-typestate-order-check/internal/config"
	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate/cache"
	"github.com/awmpietro/golang-typestate-order-check/internal/transport/httptransport"
)

func main() {
	cfg := config.Load()
	logger := cfg.Logger(os.Stderr)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := typestate.NewPrometheusRunObserver(reg)
	if err != nil {
		logger.Error("register metrics", "error", err)
		os.Exit(1)
	}

	runLog := typestate.NewAsyncRunObserver(
		typestate.MultiRunObserver{metrics, typestate.NewRunLogger(logger)},
		cfg.ObsBuffer,
	)
	defer runLog.Close()

	svc := app.NewService(
		typestate.NewCompiler(),
		eog.NewCompiler(),
		cache.NewInMemory(cfg.CacheMaxItems),
		app.WithWorkers(cfg.Workers),
		app.WithLogger(logger),
		app.WithRunObserver(runLog),
	)
	h := httptransport.NewHandler(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("/check", h.Check)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	logger.Info("listening", "addr", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		logger.Error("server stopped", "error", err)
		runLog.Close()
		os.Exit(1)
	}
}
