package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "MEMBER_SYNC"
	defaultHTTPAddress   = "0.0.0.0:3000"
	defaultDatabasePath  = "member-sync.db"
	defaultLogLevel      = "info"
	defaultLogEncoding   = "json"
	defaultStorageBucket = "vecr-storage"
	defaultStorageRoot   = "./storage"
	defaultCacheSize     = 1000
	defaultTokenTTL      = 24 * time.Hour
	defaultIssuer        = "member-sync"

	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"

	StorageBackendMinIO      = "minio"
	StorageBackendFilesystem = "filesystem"
)

// AppConfig captures runtime configuration for the member sync service.
type AppConfig struct {
	HTTPAddress string
	CORSOrigins []string
	LogLevel    string
	LogEncoding string
	Database    DatabaseConfig
	Storage     StorageConfig
	Webhook     WebhookConfig
	Poll        PollConfig
	Auth        AuthConfig
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string
	Path   string
	DSN    string
}

// StorageConfig selects the object store holding member files.
type StorageConfig struct {
	Backend   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Root      string
	Timeout   time.Duration
	ReadRPS   float64
	ReadBurst int
}

// WebhookConfig controls notification filtering.
type WebhookConfig struct {
	ETagCheckEnabled bool
	CacheSize        int
	TargetPrefixes   []string
}

// PollConfig controls the optional storage poller. A zero interval disables it.
type PollConfig struct {
	Interval time.Duration
	Prime    bool
}

// AuthConfig protects the webhook and registration routes when a secret is set.
type AuthConfig struct {
	SigningSecret string
	Issuer        string
	TokenTTL      time.Duration
}

// Enabled reports whether bearer tokens are required.
func (a AuthConfig) Enabled() bool {
	return strings.TrimSpace(a.SigningSecret) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
// The storage and dedup keys also honour the environment names used by the
// storage deployment (MINIO_ROOT_USER, WEBHOOK_ETAG_CHECK_ENABLED, ...).
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.cors_origins", []string{})
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("database.driver", DatabaseDriverSQLite)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("storage.backend", StorageBackendMinIO)
	configViper.SetDefault("storage.bucket", defaultStorageBucket)
	configViper.SetDefault("storage.root", defaultStorageRoot)
	configViper.SetDefault("storage.use_ssl", false)
	configViper.SetDefault("storage.timeout", 10*time.Second)
	configViper.SetDefault("storage.read_rps", 0)
	configViper.SetDefault("storage.read_burst", 1)
	configViper.SetDefault("webhook.etag_check_enabled", true)
	configViper.SetDefault("webhook.cache_size", defaultCacheSize)
	configViper.SetDefault("webhook.target_prefixes", []string{})
	configViper.SetDefault("poll.interval", time.Duration(0))
	configViper.SetDefault("poll.prime", false)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)

	_ = configViper.BindEnv("storage.access_key", envPrefix+"_STORAGE_ACCESS_KEY", "MINIO_ROOT_USER")
	_ = configViper.BindEnv("storage.secret_key", envPrefix+"_STORAGE_SECRET_KEY", "MINIO_ROOT_PASSWORD")
	_ = configViper.BindEnv("storage.bucket", envPrefix+"_STORAGE_BUCKET", "MINIO_BUCKET_NAME")
	_ = configViper.BindEnv("webhook.etag_check_enabled", envPrefix+"_WEBHOOK_ETAG_CHECK_ENABLED", "WEBHOOK_ETAG_CHECK_ENABLED")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress: configViper.GetString("http.address"),
		CORSOrigins: stringList(configViper, "http.cors_origins"),
		LogLevel:    configViper.GetString("log.level"),
		LogEncoding: configViper.GetString("log.encoding"),
		Database: DatabaseConfig{
			Driver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
			Path:   configViper.GetString("database.path"),
			DSN:    configViper.GetString("database.dsn"),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(strings.TrimSpace(configViper.GetString("storage.backend"))),
			Endpoint:  configViper.GetString("storage.endpoint"),
			AccessKey: configViper.GetString("storage.access_key"),
			SecretKey: configViper.GetString("storage.secret_key"),
			Bucket:    configViper.GetString("storage.bucket"),
			UseSSL:    configViper.GetBool("storage.use_ssl"),
			Root:      configViper.GetString("storage.root"),
			Timeout:   configViper.GetDuration("storage.timeout"),
			ReadRPS:   configViper.GetFloat64("storage.read_rps"),
			ReadBurst: configViper.GetInt("storage.read_burst"),
		},
		Webhook: WebhookConfig{
			ETagCheckEnabled: configViper.GetBool("webhook.etag_check_enabled"),
			CacheSize:        configViper.GetInt("webhook.cache_size"),
			TargetPrefixes:   stringList(configViper, "webhook.target_prefixes"),
		},
		Poll: PollConfig{
			Interval: configViper.GetDuration("poll.interval"),
			Prime:    configViper.GetBool("poll.prime"),
		},
		Auth: AuthConfig{
			SigningSecret: configViper.GetString("auth.signing_secret"),
			Issuer:        configViper.GetString("auth.issuer"),
			TokenTTL:      configViper.GetDuration("auth.token_ttl"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.Database.Driver {
	case DatabaseDriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DatabaseDriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be %s or %s, got %q", DatabaseDriverSQLite, DatabaseDriverPostgres, c.Database.Driver)
	}

	switch c.Storage.Backend {
	case StorageBackendMinIO:
		if strings.TrimSpace(c.Storage.Endpoint) == "" {
			return fmt.Errorf("storage.endpoint is required for the minio backend")
		}
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return fmt.Errorf("storage.bucket is required for the minio backend")
		}
	case StorageBackendFilesystem:
		if strings.TrimSpace(c.Storage.Root) == "" {
			return fmt.Errorf("storage.root is required for the filesystem backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %s or %s, got %q", StorageBackendMinIO, StorageBackendFilesystem, c.Storage.Backend)
	}

	if c.Storage.ReadRPS < 0 {
		return fmt.Errorf("storage.read_rps must not be negative")
	}
	if c.Webhook.CacheSize <= 0 {
		return fmt.Errorf("webhook.cache_size must be positive")
	}
	if c.Poll.Interval < 0 {
		return fmt.Errorf("poll.interval must not be negative")
	}
	if c.Auth.Enabled() && c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

// stringList reads a list key that may arrive as a comma separated env value.
func stringList(configViper *viper.Viper, key string) []string {
	var values []string
	for _, entry := range configViper.GetStringSlice(key) {
		for _, part := range strings.Split(entry, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				values = append(values, trimmed)
			}
		}
	}
	return values
}
