package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("tablecraft-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Catalog.Driver != CatalogDriverSQLite {
		t.Fatalf("Catalog.Driver = %q", cfg.Catalog.Driver)
	}
	if !cfg.Catalog.AutoMigrate {
		t.Fatal("Catalog.AutoMigrate should default to true in dev")
	}
	if cfg.Databases.RootDir != "./databases" || cfg.Databases.FileExtension != ".db" {
		t.Fatalf("Databases = %+v", cfg.Databases)
	}
	if cfg.Databases.DefaultRowLimit != 100 {
		t.Fatalf("Databases.DefaultRowLimit = %d", cfg.Databases.DefaultRowLimit)
	}
	if cfg.ObjectStore.Enabled {
		t.Fatal("ObjectStore.Enabled should default to false")
	}
	if cfg.ObjectStore.LocalDir != "./snapshots" {
		t.Fatalf("ObjectStore.LocalDir = %q", cfg.ObjectStore.LocalDir)
	}
	if cfg.Translate.Provider != TranslateProviderPattern {
		t.Fatalf("Translate.Provider = %q", cfg.Translate.Provider)
	}
	if !cfg.UI.Enabled {
		t.Fatal("UI.Enabled should default to true")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("tablecraft-api", mapLookup(map[string]string{"TABLECRAFT_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Catalog.AutoMigrate {
		t.Fatal("Catalog.AutoMigrate should default to false in prod")
	}
	if !cfg.ObjectStore.UseSSL || cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
}

func TestLoadTestProfileDefaults(t *testing.T) {
	cfg, err := Load("", mapLookup(map[string]string{"TABLECRAFT_PROFILE": "TEST"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "tablecraft-api" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":18080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"TABLECRAFT_PROFILE":                        "test",
		"TABLECRAFT_SERVICE_NAME":                   "tablecraft-custom",
		"TABLECRAFT_HTTP_ADDR":                      ":9999",
		"TABLECRAFT_HTTP_READ_TIMEOUT":              "2s",
		"TABLECRAFT_HTTP_WRITE_TIMEOUT":             "3s",
		"TABLECRAFT_HTTP_MAX_BODY_BYTES":            "4096",
		"TABLECRAFT_LOG_LEVEL":                      "error",
		"TABLECRAFT_LOG_JSON":                       "false",
		"TABLECRAFT_AUTH_REQUIRED":                  "true",
		"TABLECRAFT_AUTH_STATIC_KEYS":               "k1:t1:query_reader",
		"TABLECRAFT_CATALOG_DRIVER":                 "postgres",
		"TABLECRAFT_CATALOG_DSN":                    "postgres://example",
		"TABLECRAFT_CATALOG_MAX_OPEN_CONNS":         "42",
		"TABLECRAFT_CATALOG_MAX_IDLE_CONNS":         "17",
		"TABLECRAFT_CATALOG_AUTO_MIGRATE":           "false",
		"TABLECRAFT_DATABASES_ROOT_DIR":             "/var/lib/tablecraft",
		"TABLECRAFT_DATABASES_FILE_EXTENSION":       ".sqlite",
		"TABLECRAFT_DATABASES_BUSY_TIMEOUT":         "750ms",
		"TABLECRAFT_DATABASES_DEFAULT_ROW_LIMIT":    "50",
		"TABLECRAFT_DATABASES_MAX_ROW_LIMIT":        "500",
		"TABLECRAFT_OBJECTSTORE_ENABLED":            "true",
		"TABLECRAFT_OBJECTSTORE_ENDPOINT":           "s3.example.com",
		"TABLECRAFT_OBJECTSTORE_BUCKET":             "tablecraft-prod",
		"TABLECRAFT_OBJECTSTORE_REGION":             "us-west-2",
		"TABLECRAFT_OBJECTSTORE_ACCESS_KEY":         "abc",
		"TABLECRAFT_OBJECTSTORE_SECRET_KEY":         "def",
		"TABLECRAFT_OBJECTSTORE_USE_SSL":            "true",
		"TABLECRAFT_OBJECTSTORE_PREFIX":             "snapshots",
		"TABLECRAFT_OBJECTSTORE_AUTO_CREATE_BUCKET": "false",
		"TABLECRAFT_OBJECTSTORE_LOCAL_DIR":          "/srv/snapshots",
		"TABLECRAFT_SNAPSHOT_MAX_ROWS":              "250",
		"TABLECRAFT_SNAPSHOT_QUERY_TIMEOUT":         "9s",
		"TABLECRAFT_SNAPSHOT_KEEP":                  "3",
		"TABLECRAFT_TRANSLATE_PROVIDER":             "openai",
		"TABLECRAFT_TRANSLATE_SAMPLE_ROWS":          "7",
		"TABLECRAFT_TRANSLATE_BASE_URL":             "https://api.example.com",
		"TABLECRAFT_TRANSLATE_API_KEY":              "secret-key",
		"TABLECRAFT_TRANSLATE_MODEL":                "small-model",
		"TABLECRAFT_TRANSLATE_TEMPERATURE":          "0.3",
		"TABLECRAFT_TRANSLATE_TIMEOUT":              "21s",
		"TABLECRAFT_UI_ENABLED":                     "false",
	})
	cfg, err := Load("tablecraft-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "tablecraft-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.HTTP.MaxBodyBytes != 4096 {
		t.Fatalf("HTTP.MaxBodyBytes = %d", cfg.HTTP.MaxBodyBytes)
	}
	if cfg.Observability.LogLevel != slog.LevelError || cfg.Observability.LogJSON {
		t.Fatalf("Observability = %+v", cfg.Observability)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:t1:query_reader" {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
	if cfg.Catalog.Driver != CatalogDriverPostgres || cfg.Catalog.DSN != "postgres://example" {
		t.Fatalf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.Catalog.MaxOpenConns != 42 || cfg.Catalog.MaxIdleConns != 17 || cfg.Catalog.AutoMigrate {
		t.Fatalf("Catalog pool = %+v", cfg.Catalog)
	}
	if cfg.Databases.RootDir != "/var/lib/tablecraft" || cfg.Databases.FileExtension != ".sqlite" {
		t.Fatalf("Databases = %+v", cfg.Databases)
	}
	if cfg.Databases.BusyTimeout != 750*time.Millisecond {
		t.Fatalf("Databases.BusyTimeout = %s", cfg.Databases.BusyTimeout)
	}
	if cfg.Databases.DefaultRowLimit != 50 || cfg.Databases.MaxRowLimit != 500 {
		t.Fatalf("row limits = %d/%d", cfg.Databases.DefaultRowLimit, cfg.Databases.MaxRowLimit)
	}
	if !cfg.ObjectStore.Enabled || cfg.ObjectStore.Endpoint != "s3.example.com" || cfg.ObjectStore.Bucket != "tablecraft-prod" {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.ObjectStore.Region != "us-west-2" || cfg.ObjectStore.AccessKeyID != "abc" || cfg.ObjectStore.SecretAccessKey != "def" {
		t.Fatalf("ObjectStore credentials = %+v", cfg.ObjectStore)
	}
	if !cfg.ObjectStore.UseSSL || cfg.ObjectStore.Prefix != "snapshots" || cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore flags = %+v", cfg.ObjectStore)
	}
	if cfg.ObjectStore.LocalDir != "/srv/snapshots" {
		t.Fatalf("ObjectStore.LocalDir = %q", cfg.ObjectStore.LocalDir)
	}
	if cfg.Snapshots.MaxRows != 250 || cfg.Snapshots.QueryTimeout != 9*time.Second || cfg.Snapshots.KeepSnapshots != 3 {
		t.Fatalf("Snapshots = %+v", cfg.Snapshots)
	}
	if cfg.Translate.Provider != TranslateProviderOpenAI || cfg.Translate.SampleRows != 7 {
		t.Fatalf("Translate = %+v", cfg.Translate)
	}
	if cfg.Translate.BaseURL != "https://api.example.com" || cfg.Translate.APIKey != "secret-key" || cfg.Translate.Model != "small-model" {
		t.Fatalf("Translate endpoint = %+v", cfg.Translate)
	}
	if cfg.Translate.Temperature != 0.3 || cfg.Translate.Timeout != 21*time.Second {
		t.Fatalf("Translate tuning = %+v", cfg.Translate)
	}
	if cfg.UI.Enabled {
		t.Fatal("UI.Enabled = true, want false")
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"profile":          {"TABLECRAFT_PROFILE": "staging"},
		"duration":         {"TABLECRAFT_HTTP_READ_TIMEOUT": "soon"},
		"bool":             {"TABLECRAFT_AUTH_REQUIRED": "maybe"},
		"int":              {"TABLECRAFT_CATALOG_MAX_OPEN_CONNS": "many"},
		"int64":            {"TABLECRAFT_HTTP_MAX_BODY_BYTES": "1MB"},
		"float":            {"TABLECRAFT_TRANSLATE_TEMPERATURE": "warm"},
		"log level":        {"TABLECRAFT_LOG_LEVEL": "verbose"},
		"catalog driver":   {"TABLECRAFT_CATALOG_DRIVER": "mysql"},
		"empty dsn":        {"TABLECRAFT_CATALOG_DSN": " "},
		"empty root dir":   {"TABLECRAFT_DATABASES_ROOT_DIR": ""},
		"row limits":       {"TABLECRAFT_DATABASES_DEFAULT_ROW_LIMIT": "500", "TABLECRAFT_DATABASES_MAX_ROW_LIMIT": "10"},
		"provider":         {"TABLECRAFT_TRANSLATE_PROVIDER": "magic"},
		"openai needs key": {"TABLECRAFT_TRANSLATE_PROVIDER": "openai"},
		"empty http addr":  {"TABLECRAFT_HTTP_ADDR": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load("tablecraft-api", mapLookup(env)); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}

func TestLoadErrorNamesTheVariable(t *testing.T) {
	_, err := Load("tablecraft-api", mapLookup(map[string]string{"TABLECRAFT_SNAPSHOT_MAX_ROWS": "lots"}))
	if err == nil || !strings.Contains(err.Error(), "TABLECRAFT_SNAPSHOT_MAX_ROWS") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadRequiresLookup(t *testing.T) {
	if _, err := Load("tablecraft-api", nil); err == nil {
		t.Fatal("expected error for nil lookup")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
