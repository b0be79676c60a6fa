package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "TABLECRAFT_"

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	CatalogDriverSQLite   = "sqlite"
	CatalogDriverPostgres = "postgres"

	TranslateProviderPattern = "pattern"
	TranslateProviderOpenAI  = "openai"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Catalog       CatalogConfig
	Databases     DatabasesConfig
	ObjectStore   ObjectStoreConfig
	Snapshots     SnapshotConfig
	Translate     TranslateConfig
	UI            UIConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
}

type CatalogConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// DatabasesConfig controls where user databases live. Every database is a
// single SQLite file <RootDir>/<tenant>/<name><FileExtension>.
type DatabasesConfig struct {
	RootDir         string
	FileExtension   string
	BusyTimeout     time.Duration
	DefaultRowLimit int
	MaxRowLimit     int
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
	// LocalDir holds snapshot files when the S3 store is disabled.
	LocalDir string
}

type SnapshotConfig struct {
	MaxRows        int
	QueryTimeout   time.Duration
	KeepSnapshots  int
	IntegrityLimit int
}

type TranslateConfig struct {
	Provider    string
	SampleRows  int
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type UIConfig struct {
	Enabled bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	env := envReader{lookup: lookup}
	env.str("SERVICE_NAME", &cfg.Service.Name)

	env.str("HTTP_ADDR", &cfg.HTTP.Address)
	env.duration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	env.duration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	env.duration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout)
	env.integer64("HTTP_MAX_BODY_BYTES", &cfg.HTTP.MaxBodyBytes)

	env.str("CATALOG_DRIVER", &cfg.Catalog.Driver)
	env.str("CATALOG_DSN", &cfg.Catalog.DSN)
	env.integer("CATALOG_MAX_OPEN_CONNS", &cfg.Catalog.MaxOpenConns)
	env.integer("CATALOG_MAX_IDLE_CONNS", &cfg.Catalog.MaxIdleConns)
	env.duration("CATALOG_CONN_MAX_IDLE_TIME", &cfg.Catalog.ConnMaxIdleTime)
	env.duration("CATALOG_CONN_MAX_LIFETIME", &cfg.Catalog.ConnMaxLifetime)
	env.boolean("CATALOG_AUTO_MIGRATE", &cfg.Catalog.AutoMigrate)

	env.str("DATABASES_ROOT_DIR", &cfg.Databases.RootDir)
	env.str("DATABASES_FILE_EXTENSION", &cfg.Databases.FileExtension)
	env.duration("DATABASES_BUSY_TIMEOUT", &cfg.Databases.BusyTimeout)
	env.integer("DATABASES_DEFAULT_ROW_LIMIT", &cfg.Databases.DefaultRowLimit)
	env.integer("DATABASES_MAX_ROW_LIMIT", &cfg.Databases.MaxRowLimit)

	env.boolean("OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled)
	env.str("OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint)
	env.str("OBJECTSTORE_REGION", &cfg.ObjectStore.Region)
	env.str("OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket)
	env.str("OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
	env.str("OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
	env.boolean("OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL)
	env.str("OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix)
	env.boolean("OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
	env.str("OBJECTSTORE_LOCAL_DIR", &cfg.ObjectStore.LocalDir)

	env.integer("SNAPSHOT_MAX_ROWS", &cfg.Snapshots.MaxRows)
	env.duration("SNAPSHOT_QUERY_TIMEOUT", &cfg.Snapshots.QueryTimeout)
	env.integer("SNAPSHOT_KEEP", &cfg.Snapshots.KeepSnapshots)
	env.integer("SNAPSHOT_INTEGRITY_LIMIT", &cfg.Snapshots.IntegrityLimit)

	env.str("TRANSLATE_PROVIDER", &cfg.Translate.Provider)
	env.integer("TRANSLATE_SAMPLE_ROWS", &cfg.Translate.SampleRows)
	env.str("TRANSLATE_BASE_URL", &cfg.Translate.BaseURL)
	env.str("TRANSLATE_API_KEY", &cfg.Translate.APIKey)
	env.str("TRANSLATE_MODEL", &cfg.Translate.Model)
	env.float("TRANSLATE_TEMPERATURE", &cfg.Translate.Temperature)
	env.duration("TRANSLATE_TIMEOUT", &cfg.Translate.Timeout)

	env.boolean("UI_ENABLED", &cfg.UI.Enabled)

	env.boolean("LOG_JSON", &cfg.Observability.LogJSON)
	env.logLevel("LOG_LEVEL", &cfg.Observability.LogLevel)

	env.boolean("AUTH_REQUIRED", &cfg.Auth.Required)
	env.str("AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys)

	if env.err != nil {
		return Config{}, env.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Catalog.Driver {
	case CatalogDriverSQLite, CatalogDriverPostgres:
	default:
		return fmt.Errorf("invalid %sCATALOG_DRIVER: %q", envPrefix, cfg.Catalog.Driver)
	}
	if cfg.Catalog.DSN == "" {
		return fmt.Errorf("catalog dsn is required")
	}
	if cfg.Databases.RootDir == "" {
		return fmt.Errorf("databases root dir is required")
	}
	if cfg.Databases.DefaultRowLimit <= 0 || cfg.Databases.MaxRowLimit < cfg.Databases.DefaultRowLimit {
		return fmt.Errorf("invalid row limits: default=%d max=%d", cfg.Databases.DefaultRowLimit, cfg.Databases.MaxRowLimit)
	}
	switch cfg.Translate.Provider {
	case TranslateProviderPattern:
	case TranslateProviderOpenAI:
		if cfg.Translate.APIKey == "" {
			return fmt.Errorf("%sTRANSLATE_API_KEY is required for the openai provider", envPrefix)
		}
	default:
		return fmt.Errorf("invalid %sTRANSLATE_PROVIDER: %q", envPrefix, cfg.Translate.Provider)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "tablecraft-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Catalog: CatalogConfig{
			Driver:          CatalogDriverSQLite,
			DSN:             "file:tablecraft-catalog.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		Databases: DatabasesConfig{
			RootDir:         "./databases",
			FileExtension:   ".db",
			BusyTimeout:     5 * time.Second,
			DefaultRowLimit: 100,
			MaxRowLimit:     10000,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "tablecraft",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
			LocalDir:         "./snapshots",
		},
		Snapshots: SnapshotConfig{
			MaxRows:        100000,
			QueryTimeout:   30 * time.Second,
			KeepSnapshots:  5,
			IntegrityLimit: 100,
		},
		Translate: TranslateConfig{
			Provider:    TranslateProviderPattern,
			SampleRows:  3,
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			Timeout:     15 * time.Second,
		},
		UI: UIConfig{
			Enabled: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Databases.RootDir = "./testdata/databases"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Catalog.AutoMigrate = false
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

// envReader applies prefixed environment overrides and keeps the first
// parse error.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (r *envReader) raw(key string) (string, string, bool) {
	if r.err != nil {
		return "", "", false
	}
	name := envPrefix + key
	value, ok := r.lookup(name)
	return name, strings.TrimSpace(value), ok
}

func (r *envReader) fail(name string, err error) {
	r.err = fmt.Errorf("invalid %s: %w", name, err)
}

func (r *envReader) str(key string, dst *string) {
	if _, value, ok := r.raw(key); ok {
		*dst = value
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	name, raw, ok := r.raw(key)
	if !ok {
		return
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(name, err)
		return
	}
	*dst = value
}

func (r *envReader) boolean(key string, dst *bool) {
	name, raw, ok := r.raw(key)
	if !ok {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(name, err)
		return
	}
	*dst = value
}

func (r *envReader) integer(key string, dst *int) {
	name, raw, ok := r.raw(key)
	if !ok {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(name, err)
		return
	}
	*dst = value
}

func (r *envReader) integer64(key string, dst *int64) {
	name, raw, ok := r.raw(key)
	if !ok {
		return
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.fail(name, err)
		return
	}
	*dst = value
}

func (r *envReader) float(key string, dst *float64) {
	name, raw, ok := r.raw(key)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.fail(name, err)
		return
	}
	*dst = value
}

func (r *envReader) logLevel(key string, dst *slog.Level) {
	name, raw, ok := r.raw(key)
	if !ok {
		return
	}
	switch strings.ToLower(raw) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		r.err = fmt.Errorf("invalid %s: %q", name, raw)
	}
}
