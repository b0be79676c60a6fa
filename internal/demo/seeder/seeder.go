// Package seeder fills a demo table through the public HTTP API so the
// translator and snapshot endpoints have data to work with.
package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Service struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	generator *Generator
}

type insertResponse struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if strings.TrimSpace(cfg.TenantID) == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.UserCardinality <= 0 {
		cfg.UserCardinality = 1
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Service{
		cfg:       cfg,
		log:       logger,
		http:      client,
		generator: NewGenerator(cfg.Seed, cfg.UserCardinality),
	}, nil
}

// Run creates the schema when configured and then inserts one batch per
// interval. It returns nil once TotalRows rows went in.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	schemaReady := !s.cfg.CreateSchema
	for {
		if !schemaReady {
			if err := s.ensureSchema(ctx); err != nil {
				s.log.Error("failed to ensure demo schema", slog.Any("error", err))
			} else {
				schemaReady = true
			}
		} else {
			if err := s.seedOnce(ctx); err != nil {
				s.log.Error("failed to insert demo batch", slog.Any("error", err))
			}
			if s.done() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) done() bool {
	return s.cfg.TotalRows > 0 && s.generator.Generated() >= int64(s.cfg.TotalRows)
}

func (s *Service) ensureSchema(ctx context.Context) error {
	if err := s.ensureDatabase(ctx); err != nil {
		return err
	}
	return s.ensureTable(ctx)
}

func (s *Service) ensureDatabase(ctx context.Context) error {
	status, body, err := s.doJSON(ctx, http.MethodGet, s.databasePath("tables"), nil, nil)
	if err != nil {
		return fmt.Errorf("check database existence: %w", err)
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check database existence failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}

	status, body, err = s.doJSON(ctx, http.MethodPost, "/v1/databases", map[string]any{"name": s.cfg.Database}, nil)
	if err != nil {
		return fmt.Errorf("create demo database: %w", err)
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return fmt.Errorf("create demo database failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}
	s.log.Info("created demo database", slog.String("database", s.cfg.Database))
	return nil
}

func (s *Service) ensureTable(ctx context.Context) error {
	status, body, err := s.doJSON(ctx, http.MethodGet, s.databasePath("tables", s.cfg.TableName), nil, nil)
	if err != nil {
		return fmt.Errorf("check table existence: %w", err)
	}
	switch status {
	case http.StatusOK:
		s.log.Info("demo table already exists", slog.String("table", s.cfg.TableName))
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check table existence failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}

	request := map[string]any{"name": s.cfg.TableName, "columns": Columns}
	status, body, err = s.doJSON(ctx, http.MethodPost, s.databasePath("tables"), request, nil)
	if err != nil {
		return fmt.Errorf("create demo table: %w", err)
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create demo table failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}
	s.log.Info("created demo table", slog.String("table", s.cfg.TableName))
	return nil
}

func (s *Service) seedOnce(ctx context.Context) error {
	batch := s.cfg.BatchSize
	if s.cfg.TotalRows > 0 {
		if remaining := int64(s.cfg.TotalRows) - s.generator.Generated(); remaining < int64(batch) {
			batch = int(remaining)
		}
	}

	inserted := 0
	var lastID int64
	for i := 0; i < batch; i++ {
		var response insertResponse
		status, body, err := s.doJSON(ctx, http.MethodPost, s.databasePath("tables", s.cfg.TableName, "rows"),
			map[string]any{"values": s.generator.NextRow()}, &response)
		if err != nil {
			return fmt.Errorf("insert request failed: %w", err)
		}
		if status != http.StatusCreated {
			return fmt.Errorf("insert request status %d: %s", status, strings.TrimSpace(string(body)))
		}
		inserted++
		lastID = response.LastInsertID
	}

	s.log.Info(
		"inserted demo batch",
		slog.String("tenant_id", s.cfg.TenantID),
		slog.String("database", s.cfg.Database),
		slog.String("table", s.cfg.TableName),
		slog.Int("batch_size", inserted),
		slog.Int64("last_insert_id", lastID),
	)
	return nil
}

func (s *Service) databasePath(parts ...string) string {
	path := "/v1/databases/" + url.PathEscape(s.cfg.Database)
	for _, part := range parts {
		path += "/" + url.PathEscape(part)
	}
	return path
}

func (s *Service) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) (int, []byte, error) {
	var payload io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", s.cfg.TenantID)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	if responseBody != nil && len(bytes.TrimSpace(body)) > 0 && resp.StatusCode < 300 {
		if err := json.Unmarshal(body, responseBody); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}
