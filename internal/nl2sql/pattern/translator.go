package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/tablecraft/tablecraft/internal/nl2sql"
)

const (
	ProviderName = "pattern"
	ModelName    = "rules-v1"
)

// Translator adapts Translate to the nl2sql.Translator interface.
type Translator struct{}

func NewTranslator() *Translator {
	return &Translator{}
}

func (t *Translator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	table, err := targetTable(req)
	if err != nil {
		return nl2sql.Result{}, err
	}
	translation := Translate(req.NaturalLanguage, table.TableName, table.Columns)
	return nl2sql.Result{
		SQL:      translation.SQL,
		Warning:  translation.Warning,
		Rule:     translation.Rule,
		Provider: ProviderName,
		Model:    ModelName,
	}, nil
}

// targetTable picks the explicitly requested table, else the first table
// whose name resolves from a word of the phrase, else the only table.
func targetTable(req nl2sql.Request) (nl2sql.TableContext, error) {
	if len(req.Tables) == 0 {
		return nl2sql.TableContext{}, fmt.Errorf("no table context available")
	}
	if name := strings.TrimSpace(req.Table); name != "" {
		for _, table := range req.Tables {
			if strings.EqualFold(table.TableName, name) {
				return table, nil
			}
		}
		return nl2sql.TableContext{}, fmt.Errorf("table %q is not part of the translation context", name)
	}
	names := make([]string, 0, len(req.Tables))
	for _, table := range req.Tables {
		names = append(names, table.TableName)
	}
	for _, word := range strings.Fields(strings.ToLower(req.NaturalLanguage)) {
		for i, name := range names {
			if strings.EqualFold(name, word) || strings.EqualFold(name+"s", word) || strings.EqualFold(name, word+"s") {
				return req.Tables[i], nil
			}
		}
	}
	return req.Tables[0], nil
}
