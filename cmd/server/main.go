package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/joho/godotenv"

	"github.com/majidshakoor42/rozanahisab/internal/backup"
	"github.com/majidshakoor42/rozanahisab/internal/config"
	"github.com/majidshakoor42/rozanahisab/internal/httpapi"
	"github.com/majidshakoor42/rozanahisab/internal/repository"
	"github.com/majidshakoor42/rozanahisab/internal/service"
	"github.com/majidshakoor42/rozanahisab/internal/store"
	"github.com/majidshakoor42/rozanahisab/internal/store/gormstore"
	"github.com/majidshakoor42/rozanahisab/internal/store/memory"
	pgstore "github.com/majidshakoor42/rozanahisab/internal/store/postgres"
	redisstore "github.com/majidshakoor42/rozanahisab/internal/store/redis"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] WARN: .env not loaded: %v", err)
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, closers, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("storage unavailable: %v", err)
	}

	loc := cfg.Location()
	repo := repository.New(backend)
	svc := service.New(repo, service.Options{
		Location:               loc,
		ReverseSummaryOnDelete: cfg.ReverseSummaryOnDelete,
	})

	if cfg.BackupDir != "" {
		scheduler := backup.NewScheduler(svc, cfg.BackupDir, cfg.BackupRetain, loc)
		if err := scheduler.Start(cfg.BackupSchedule); err != nil {
			log.Fatalf("backup scheduler: %v", err)
		}
		// Stop first so a running backup finishes before the store closes.
		closers = append([]func() error{scheduler.Stop}, closers...)
	} else {
		log.Println("backup scheduler: disabled")
	}

	auth, err := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.OwnerPassphrase)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:      cfg.AllowedOrigin,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("ledger backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openBackend connects the configured storage backend. A durable backend that
// cannot be reached is fatal; there is no silent in-memory fallback.
func openBackend(ctx context.Context, cfg config.Config) (store.Backend, []func() error, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		log.Println("[store] WARN: using in-memory storage, data is lost on restart")
		return memory.New(), nil, nil
	case config.BackendSQLite:
		s, err := gormstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite %s: %w", cfg.SQLitePath, err)
		}
		log.Printf("repository: sqlite (%s)", cfg.SQLitePath)
		return s, []func() error{s.Close}, nil
	case config.BackendMySQL:
		if cfg.MySQLDSN == "" {
			return nil, nil, errors.New("MYSQL_DSN is required for the mysql backend")
		}
		s, err := gormstore.OpenMySQL(cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("mysql: %w", err)
		}
		log.Println("repository: mysql")
		return s, []func() error{s.Close}, nil
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
		s, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		log.Println("repository: postgres")
		return s, []func() error{s.Close}, nil
	case config.BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, nil, errors.New("REDIS_ADDR is required for the redis backend")
		}
		s := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		log.Println("repository: redis")
		return s, []func() error{s.Close}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.OwnerPassphrase) < 8 {
		return fmt.Errorf("OWNER_PASSPHRASE must be set and at least 8 characters")
	}
	if err := validatePassphraseStrength(cfg.OwnerPassphrase); err != nil {
		return fmt.Errorf("OWNER_PASSPHRASE is too weak: %w", err)
	}
	return nil
}

// validatePassphraseStrength rejects well-known passphrases, a single repeated
// character, and plain ascending or descending runs.
func validatePassphraseStrength(passphrase string) error {
	known := map[string]bool{
		"password": true, "password1": true, "12345678": true, "123456789": true,
		"87654321": true, "qwertyui": true, "qwerty123": true, "khata123": true,
		"admin123": true, "letmein1": true, "iloveyou": true, "00000000": true,
	}
	if known[strings.ToLower(passphrase)] {
		return fmt.Errorf("common passphrase not allowed")
	}

	allSame := true
	for i := 1; i < len(passphrase); i++ {
		if passphrase[i] != passphrase[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character passphrase not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(passphrase); i++ {
		diff := int(passphrase[i]) - int(passphrase[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential passphrase not allowed")
	}

	hasLetter, hasOther := false, false
	for _, r := range passphrase {
		if unicode.IsLetter(r) {
			hasLetter = true
		} else {
			hasOther = true
		}
	}
	if !hasLetter || !hasOther {
		return fmt.Errorf("passphrase must mix letters with digits or symbols")
	}
	return nil
}
