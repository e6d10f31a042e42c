package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inkcheck/api/internal/analysis"
	"inkcheck/api/internal/app"
	"inkcheck/api/internal/archive"
	"inkcheck/api/internal/cache"
	"inkcheck/api/internal/config"
	"inkcheck/api/internal/export"
	"inkcheck/api/internal/search"
	"inkcheck/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	defer searchService.Close()
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	var adapterOpts []analysis.Option
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for analysis result cache")
		resultCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer resultCache.Close()
		adapterOpts = append(adapterOpts, analysis.WithCache(resultCache))
	}

	var exportOpts []export.Option
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := archive.New(ctx, archive.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("archive connection failed: %v", err)
		}
		log.Printf("Archiving transcripts and exports to bucket %s", cfg.MinioBucket)
		adapterOpts = append(adapterOpts, analysis.WithArchive(objects))
		exportOpts = append(exportOpts, export.WithArchive(objects))
	}

	opts := []app.Option{
		app.WithSearch(searchService),
		app.WithExporter(export.NewService(exportOpts...)),
	}
	if strings.TrimSpace(cfg.ServiceURL) != "" {
		client := analysis.NewClient(analysis.ClientConfig{
			URL:           cfg.ServiceURL,
			Token:         cfg.ServiceToken,
			ModelType:     cfg.ModelType,
			QwenModelType: cfg.QwenModelType,
			UseEnsemble:   cfg.UseEnsemble,
		})
		opts = append(opts, app.WithAnalyzer(analysis.NewAdapter(client, adapterOpts...)))
	} else {
		log.Printf("WARNING: CORRECTION_SERVICE_URL not set, analysis is disabled")
	}
	service := app.New(cfg, dataStore, opts...)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Analysis responses stream for as long as the service takes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Inkcheck API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
