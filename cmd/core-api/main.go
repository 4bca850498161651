package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/pagebell/pagebell/internal/api"
	"github.com/pagebell/pagebell/internal/cache"
	"github.com/pagebell/pagebell/internal/config"
	"github.com/pagebell/pagebell/internal/db"
	"github.com/pagebell/pagebell/internal/logging"
	"github.com/pagebell/pagebell/internal/metrics"
	"github.com/pagebell/pagebell/internal/platform"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "create-api-key" {
		createAPIKey(os.Args[2:])
		return
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate("core-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	secretKey, err := cfg.SecretKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid flow secret key")
	}

	if *migrateFlag {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.CoreDatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics(corePool)

	rdb, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	srv := api.NewServer(logger, corePool, rdb, tc, cfg, secretKey)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting core API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

func createAPIKey(args []string) {
	fs := flag.NewFlagSet("create-api-key", flag.ExitOnError)
	name := fs.String("name", "", "Name for the API key (required)")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fmt.Fprintln(os.Stderr, "usage: core-api create-api-key --name <name>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to generate key: %v\n", err)
		os.Exit(1)
	}
	rawKey := "pbk_" + hex.EncodeToString(raw)
	hash := sha256.Sum256([]byte(rawKey))

	id := platform.NewName("key")
	_, err = pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, scopes, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, *name, hex.EncodeToString(hash[:]), []string{"*"}, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API key created successfully.\n\n")
	fmt.Printf("  Name:   %s\n", *name)
	fmt.Printf("  ID:     %s\n", id)
	fmt.Printf("  Key:    %s\n\n", rawKey)
	fmt.Printf("Save this key - it will not be shown again.\n")
}
