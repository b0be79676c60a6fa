package api

import (
	"net/http"
	"strings"

	"github.com/tablecraft/tablecraft/internal/auth"
	"github.com/tablecraft/tablecraft/internal/catalog"
	"github.com/tablecraft/tablecraft/internal/config"
	"github.com/tablecraft/tablecraft/internal/nl2sql"
	"github.com/tablecraft/tablecraft/internal/nl2sql/pattern"
	"github.com/tablecraft/tablecraft/internal/observability"
	"github.com/tablecraft/tablecraft/internal/query"
	"github.com/tablecraft/tablecraft/internal/sqlitedb"
)

type translateRequest struct {
	Prompt   string `json:"prompt"`
	Table    string `json:"table,omitempty"`
	Execute  bool   `json:"execute,omitempty"`
	RowLimit int    `json:"row_limit,omitempty"`
}

type translateResponse struct {
	Database string          `json:"database"`
	Table    string          `json:"table,omitempty"`
	Prompt   string          `json:"prompt"`
	SQL      string          `json:"sql"`
	Warning  string          `json:"warning,omitempty"`
	Rule     string          `json:"rule,omitempty"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Executed bool            `json:"executed"`
	Result   *resultResponse `json:"result,omitempty"`
}

// handleTranslate turns a phrase into a statement against the database's
// tables and optionally runs it.
func handleTranslate(deps Dependencies, cfg config.Config, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleQueryReader)
	if !ok {
		return
	}
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "TRANSLATOR_UNAVAILABLE", "translator is not configured", true, nil)
		return
	}
	var request translateRequest
	if !decodeJSON(w, r, &request, "translate") {
		return
	}
	prompt := strings.TrimSpace(request.Prompt)
	if prompt == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}
	entry, database, ok := openDatabase(deps, w, r, tenantID)
	if !ok {
		return
	}

	tables, err := translationTables(r, cfg, database, strings.TrimSpace(request.Table))
	if err != nil {
		writeStoreError(r.Context(), w, err, http.StatusInternalServerError, "TRANSLATION_CONTEXT_FAILED", "failed to load table context")
		return
	}
	if len(tables) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLES_REQUIRED", "database has no tables to translate against", false, nil)
		return
	}

	translation, err := deps.Translator.Translate(r.Context(), nl2sql.Request{
		TenantID:        tenantID,
		Database:        entry.Name,
		Table:           strings.TrimSpace(request.Table),
		NaturalLanguage: prompt,
		Tables:          tables,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATION_FAILED", "failed to translate prompt", true, map[string]any{"details": err.Error()})
		return
	}
	observability.ObserveTranslation(translation.Provider, translation.Rule, translation.Rule == pattern.RuleDefault && translation.Warning != "")

	response := translateResponse{
		Database: entry.Name,
		Table:    request.Table,
		Prompt:   prompt,
		SQL:      translation.SQL,
		Warning:  translation.Warning,
		Rule:     translation.Rule,
		Provider: translation.Provider,
		Model:    translation.Model,
	}
	logInput := catalog.InsertQueryLogInput{
		Source:  catalog.QuerySourceTranslate,
		Prompt:  prompt,
		SQLText: translation.SQL,
		Rule:    translation.Rule,
	}
	if !request.Execute {
		recordQuery(r.Context(), deps, entry, logInput, query.Result{Kind: query.Classify(translation.SQL)}, nil)
		writeJSON(w, http.StatusOK, response)
		return
	}

	if err := requireRole(r, statementRole(translation.SQL)); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, map[string]any{"sql": translation.SQL})
		return
	}
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "QUERY_ENGINE_UNAVAILABLE", "query engine is not configured", true, nil)
		return
	}
	result, err := runStatement(r.Context(), deps, cfg, tenantID, entry, query.StripTrailingSemicolons(translation.SQL), request.RowLimit)
	recordQuery(r.Context(), deps, entry, logInput, result, err)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_FAILED", "translated statement failed", false, map[string]any{
			"details": err.Error(),
			"sql":     translation.SQL,
		})
		return
	}
	converted := toResultResponse(result)
	response.Executed = true
	response.Result = &converted
	writeJSON(w, http.StatusOK, response)
}

// translationTables describes the requested table, or every table when none
// is named. Listed tables whose names the form API would reject are skipped.
// Sample rows are only gathered for model-backed providers.
func translationTables(r *http.Request, cfg config.Config, database *sqlitedb.Database, table string) ([]nl2sql.TableContext, error) {
	sampleRows := 0
	if cfg.Translate.Provider == config.TranslateProviderOpenAI {
		sampleRows = cfg.Translate.SampleRows
	}
	names := []string{table}
	if table == "" {
		listed, err := database.ListTables(r.Context())
		if err != nil {
			return nil, err
		}
		names = names[:0]
		for _, name := range listed {
			if sqlitedb.ValidateName("table", name) == nil {
				names = append(names, name)
			}
		}
	}
	tables := make([]nl2sql.TableContext, 0, len(names))
	for _, name := range names {
		tableContext, err := database.TranslationContext(r.Context(), name, sampleRows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, tableContext)
	}
	return tables, nil
}
