package main

import (
	"context"
	"time"

	"expense-predictor/internal/backend"
	"expense-predictor/internal/cache"
	"expense-predictor/internal/classifier"
	"expense-predictor/internal/cli"
	"expense-predictor/internal/config"
	apphttp "expense-predictor/internal/http"
	"expense-predictor/internal/log"
	"expense-predictor/internal/services"
)

func main() {
	cfg, logger, err := cli.LoadConfig(log.ComponentApp)
	if err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}
	if err := run(cfg, logger); err != nil {
		cli.Fatal(logger, "Predictor stopped with error", err)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	predictor, err := classifier.Load(classifier.Options{
		ModelPath:      cfg.ModelPath,
		EncoderPath:    cfg.EncoderPath,
		Format:         cfg.ModelFormat,
		RuntimeLibrary: cfg.ONNXRuntimeLib,
	})
	if err != nil {
		return err
	}
	defer predictor.Close()
	logger.Info("Classifier loaded",
		log.FieldOperation, log.OpLoad,
		"model_path", cfg.ModelPath,
		"categories", len(predictor.Categories()))

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	ledger, err := backend.NewFactory(logger.WithComponent(log.ComponentLedger).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	opts := []services.Option{
		services.WithLocation(cfg.Location()),
		services.WithLogger(logger.WithComponent(log.ComponentPredict)),
	}
	cacheManager := cache.NewManager()
	if cfg.PredictionCacheSize > 0 {
		pc := cache.NewPredictionCache(cfg.PredictionCacheSize, cfg.PredictionCacheTTL)
		cacheManager.Register(pc)
		opts = append(opts, services.WithCache(pc))
	}
	if ledger.Publisher != nil {
		opts = append(opts, services.WithPublisher(ledger.Publisher))
	}
	svc := services.NewPredictionService(predictor, ledger.Ledger, opts...)

	cacheManager.StartCleanup(ctx, time.Minute)
	defer cacheManager.Stop()

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Predictor:          svc,
		Lister:             ledger.Ledger,
		Ready:              ledger.Ready,
		Categories:         predictor.Categories(),
		Logger:             logger.WithComponent(log.ComponentHTTP),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}

	logger.Info("Starting predictor server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		log.FieldBackend, cfg.LedgerBackend)
	return cli.Serve(ctx, logger, srv.ListenAndServe, srv.Shutdown)
}
