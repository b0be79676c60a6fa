package seeder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	APIBaseURL      string
	APIKey          string
	TenantID        string
	Database        string
	TableName       string
	BatchSize       int
	Interval        time.Duration
	HTTPTimeout     time.Duration
	CreateSchema    bool
	TotalRows       int
	UserCardinality int
	Seed            int64
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:      "http://localhost:8080",
		APIKey:          "",
		TenantID:        "tenant-dev",
		Database:        "demo",
		TableName:       "events",
		BatchSize:       25,
		Interval:        time.Second,
		HTTPTimeout:     10 * time.Second,
		CreateSchema:    true,
		TotalRows:       0,
		UserCardinality: 200,
		Seed:            time.Now().UTC().UnixNano(),
	}
}

// LoadConfigFromEnv reads TABLECRAFT_DEMO_* variables over DefaultConfig.
// A TotalRows of zero keeps seeding until the context ends.
func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "TABLECRAFT_DEMO_API_URL", &cfg.APIBaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLECRAFT_DEMO_API_KEY", &cfg.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLECRAFT_DEMO_TENANT_ID", &cfg.TenantID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLECRAFT_DEMO_DATABASE", &cfg.Database); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLECRAFT_DEMO_TABLE", &cfg.TableName); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLECRAFT_DEMO_BATCH_SIZE", &cfg.BatchSize); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TABLECRAFT_DEMO_INTERVAL", &cfg.Interval); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TABLECRAFT_DEMO_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLECRAFT_DEMO_CREATE_SCHEMA", &cfg.CreateSchema); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLECRAFT_DEMO_TOTAL_ROWS", &cfg.TotalRows); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLECRAFT_DEMO_USER_CARDINALITY", &cfg.UserCardinality); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "TABLECRAFT_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, fmt.Errorf("TABLECRAFT_DEMO_API_URL is required")
	}
	if strings.TrimSpace(cfg.TenantID) == "" {
		return Config{}, fmt.Errorf("TABLECRAFT_DEMO_TENANT_ID is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return Config{}, fmt.Errorf("TABLECRAFT_DEMO_DATABASE is required")
	}
	if strings.TrimSpace(cfg.TableName) == "" {
		return Config{}, fmt.Errorf("TABLECRAFT_DEMO_TABLE is required")
	}
	if cfg.BatchSize <= 0 {
		return Config{}, fmt.Errorf("TABLECRAFT_DEMO_BATCH_SIZE must be > 0")
	}
	if cfg.Interval <= 0 {
		return Config{}, fmt.Errorf("TABLECRAFT_DEMO_INTERVAL must be > 0")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("TABLECRAFT_DEMO_HTTP_TIMEOUT must be > 0")
	}
	if cfg.TotalRows < 0 {
		return Config{}, fmt.Errorf("TABLECRAFT_DEMO_TOTAL_ROWS must be >= 0")
	}
	if cfg.UserCardinality <= 0 {
		return Config{}, fmt.Errorf("TABLECRAFT_DEMO_USER_CARDINALITY must be > 0")
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.TenantID = strings.TrimSpace(cfg.TenantID)
	cfg.Database = strings.TrimSpace(cfg.Database)
	cfg.TableName = strings.TrimSpace(cfg.TableName)
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
