package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:data_writer|query_reader, k2:t2:db_admin")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.TenantID != "t1" {
		t.Fatalf("TenantID = %q", identity.TenantID)
	}
	if !identity.HasRole(RoleDataWriter) {
		t.Fatal("expected data_writer role")
	}
	if identity.Permits(RoleDBAdmin) {
		t.Fatal("data_writer must not permit db_admin")
	}
	admin, ok := validator.Validate(context.Background(), "k2")
	if !ok || admin.TenantID != "t2" {
		t.Fatalf("k2 identity = %+v ok=%v", admin, ok)
	}
}

func TestStaticAPIKeyValidatorEmptyListAcceptsNothing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator(" ")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if _, ok := validator.Validate(context.Background(), ""); ok {
		t.Fatal("empty key must not validate")
	}
}

func TestIdentityPermitsLowerRoles(t *testing.T) {
	admin := Identity{TenantID: "t", Roles: []string{RoleDBAdmin}}
	for _, role := range []string{RoleQueryReader, RoleDataWriter, RoleDBAdmin} {
		if !admin.Permits(role) {
			t.Fatalf("db_admin should permit %s", role)
		}
	}
	reader := Identity{TenantID: "t", Roles: []string{RoleQueryReader}}
	if reader.Permits(RoleDataWriter) {
		t.Fatal("query_reader must not permit data_writer")
	}
	if !reader.Permits(RoleQueryReader) {
		t.Fatal("query_reader should permit itself")
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{
		"invalid",
		"k1::query_reader",
		"k1:t1:",
		"k1:t1:superuser",
		"k1:../etc:db_admin",
		"k1:t1:query_reader,k1:t2:db_admin",
	} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("expected parse error for %q", spec)
		}
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/databases", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(nil, validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.TenantID != "t1" {
			t.Fatalf("TenantID = %q", identity.TenantID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/databases", nil)
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/databases", nil)
	req.Header.Set("Authorization", "Bearer k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/databases", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestMiddlewareRejectsForeignTenantHeader(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:db_admin")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/databases", nil)
	req.Header.Set("X-API-Key", "k1")
	req.Header.Set("X-Tenant-ID", "t2")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
	if !strings.Contains(rr.Body.String(), "TENANT_MISMATCH") {
		t.Fatalf("body = %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/databases", nil)
	req.Header.Set("X-API-Key", "k1")
	req.Header.Set("X-Tenant-ID", "t1")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("matching tenant status = %d", rr.Code)
	}
}

func TestExtractAPIKey(t *testing.T) {
	cases := []struct {
		header string
		value  string
		want   string
	}{
		{"X-API-Key", " k1 ", "k1"},
		{"Authorization", "Bearer k2", "k2"},
		{"Authorization", "bearer k3", "k3"},
		{"Authorization", "Basic abc", ""},
		{"Authorization", "k4", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(tc.header, tc.value)
		if got := extractAPIKey(req); got != tc.want {
			t.Fatalf("%s=%q: extractAPIKey() = %q, want %q", tc.header, tc.value, got, tc.want)
		}
	}
}
