package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	StorageBackend         string
	DatabaseURL            string
	SQLitePath             string
	MySQLDSN               string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	RedisPrefix            string
	AuthSecret             string
	OwnerPassphrase        string
	AccessTokenTTLMinutes  int
	Timezone               string
	ReverseSummaryOnDelete bool
	BackupDir              string
	BackupSchedule         string
	BackupRetain           int
	LoginRatePerMinute     int
}

func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("STORAGE_BACKEND", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "khata.db")
	v.SetDefault("MYSQL_DSN", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "rozanahisab:")
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("OWNER_PASSPHRASE", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 720)
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("REVERSE_SUMMARY_ON_DELETE", false)
	v.SetDefault("BACKUP_DIR", "")
	v.SetDefault("BACKUP_SCHEDULE", "0 23 * * *")
	v.SetDefault("BACKUP_RETAIN", 14)
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 5)

	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 720
	}
	retain := v.GetInt("BACKUP_RETAIN")
	if retain < 1 {
		retain = 14
	}
	loginRate := v.GetInt("LOGIN_RATE_PER_MINUTE")
	if loginRate < 1 {
		loginRate = 5
	}

	cfg := Config{
		Port:                   v.GetString("PORT"),
		AllowedOrigin:          v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:            strings.TrimSpace(v.GetString("DATABASE_URL")),
		SQLitePath:             v.GetString("SQLITE_PATH"),
		MySQLDSN:               strings.TrimSpace(v.GetString("MYSQL_DSN")),
		RedisAddr:              strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		RedisPrefix:            v.GetString("REDIS_PREFIX"),
		AuthSecret:             strings.TrimSpace(v.GetString("AUTH_SECRET")),
		OwnerPassphrase:        strings.TrimSpace(v.GetString("OWNER_PASSPHRASE")),
		AccessTokenTTLMinutes:  tokenTTL,
		Timezone:               strings.TrimSpace(v.GetString("TIMEZONE")),
		ReverseSummaryOnDelete: v.GetBool("REVERSE_SUMMARY_ON_DELETE"),
		BackupDir:              strings.TrimSpace(v.GetString("BACKUP_DIR")),
		BackupSchedule:         strings.TrimSpace(v.GetString("BACKUP_SCHEDULE")),
		BackupRetain:           retain,
		LoginRatePerMinute:     loginRate,
	}
	cfg.StorageBackend = resolveBackend(v.GetString("STORAGE_BACKEND"), cfg.DatabaseURL)

	return cfg
}

// resolveBackend falls back to postgres when a DATABASE_URL is present and to
// the sqlite file otherwise.
func resolveBackend(requested string, databaseURL string) string {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested != "" {
		return requested
	}
	if databaseURL != "" {
		return BackendPostgres
	}
	return BackendSQLite
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// Location resolves TIMEZONE. An unknown zone falls back to the host zone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("[config] WARN: unknown TIMEZONE %q, using local time: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}
