package pattern

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablecraft/tablecraft/internal/nl2sql"
)

func TestTranslatorUsesRequestedTable(t *testing.T) {
	translator := NewTranslator()
	result, err := translator.Translate(context.Background(), nl2sql.Request{
		Table:           "Orders",
		NaturalLanguage: "average amount",
		Tables: []nl2sql.TableContext{
			{TableName: "users", Columns: columnsOf("id", "name")},
			{TableName: "orders", Columns: columnsOf("id", "amount")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT AVG(amount) as average_amount FROM orders", result.SQL)
	assert.Equal(t, "average", result.Rule)
	assert.Equal(t, ProviderName, result.Provider)
	assert.Equal(t, ModelName, result.Model)
}

func TestTranslatorPicksTableNamedInPhrase(t *testing.T) {
	result, err := NewTranslator().Translate(context.Background(), nl2sql.Request{
		NaturalLanguage: "show all orders",
		Tables: []nl2sql.TableContext{
			{TableName: "users", Columns: columnsOf("id")},
			{TableName: "orders", Columns: columnsOf("id")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders LIMIT 100", result.SQL)
}

func TestTranslatorDefaultsToFirstTable(t *testing.T) {
	result, err := NewTranslator().Translate(context.Background(), nl2sql.Request{
		NaturalLanguage: "gibberish",
		Tables:          []nl2sql.TableContext{{TableName: "users"}, {TableName: "orders"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users LIMIT 100", result.SQL)
	assert.Equal(t, FallbackWarning, result.Warning)
}

func TestTranslatorRejectsMissingContext(t *testing.T) {
	_, err := NewTranslator().Translate(context.Background(), nl2sql.Request{NaturalLanguage: "show all users"})
	require.Error(t, err)

	_, err = NewTranslator().Translate(context.Background(), nl2sql.Request{
		Table:           "ghosts",
		NaturalLanguage: "show all",
		Tables:          []nl2sql.TableContext{{TableName: "users"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghosts")
}
