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

	"synkris/api/internal/app"
	"synkris/api/internal/auth"
	"synkris/api/internal/blob"
	"synkris/api/internal/config"
	"synkris/api/internal/email"
	"synkris/api/internal/export"
	"synkris/api/internal/gitrepo"
	"synkris/api/internal/pubsub"
	"synkris/api/internal/search"
	"synkris/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var broker pubsub.Broker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for change notifications")
		redisBroker, err := pubsub.NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		broker = redisBroker
	} else {
		log.Printf("Using in-process change notifications")
		broker = pubsub.NewMemoryBroker()
	}
	defer broker.Close()

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		go searchService.ReindexAllFromPG(context.Background())
	}

	deps := app.Dependencies{
		Git:    gitrepo.New(cfg.ReposDir),
		Broker: broker,
		Search: searchService,
		Email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		Exporter: export.NewService(cfg.ChromePath),
		Verifier: auth.NewVerifier(cfg.IdentitySecret, cfg.IdentityIssuer, cfg.IdentityAudience),
	}

	if strings.TrimSpace(cfg.BlobEndpoint) != "" {
		blobStore, err := blob.New(blob.Config{
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
			UseSSL:    cfg.BlobUseSSL,
		})
		if err != nil {
			log.Fatalf("blob storage config invalid: %v", err)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := blobStore.EnsureBucket(bucketCtx); err != nil {
			log.Printf("WARNING: blob bucket unavailable, exports will stream inline: %v", err)
		} else {
			deps.Blob = blobStore
		}
		cancel()
	}

	service := app.New(cfg, dataStore, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Synkris API listening on %s", cfg.Addr)
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
	// pending version captures are saved before the database goes away
	service.Close(shutdownCtx)
}
