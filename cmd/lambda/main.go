package main

import (
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/awmpietro/golang-typestate-order-check/internal/app"
	"github.com/awmpietro/golang-typestate-order-check/internal/config"
	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate/cache"
	"github.com/awmpietro/golang-typestate-order-check/internal/transport/lambdatransport"
)

func main() {
	cfg := config.Load()
	logger := cfg.Logger(os.Stdout)

	runLog := typestate.NewAsyncRunObserver(typestate.NewRunLogger(logger), cfg.ObsBuffer)
	defer runLog.Close()

	svc := app.NewService(
		typestate.NewCompiler(),
		eog.NewCompiler(),
		cache.NewInMemory(cfg.CacheMaxItems),
		app.WithWorkers(cfg.Workers),
		app.WithLogger(logger),
		app.WithRunObserver(runLog),
	)
	h := lambdatransport.NewHandler(svc)

	lambda.Start(h.Check)
}
