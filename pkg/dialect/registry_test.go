package dialect_test

import (
	"testing"

	"github.com/leapstack-labs/modelq/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/modelq/pkg/dialects/ansi"
	_ "github.com/leapstack-labs/modelq/pkg/dialects/bigquery"
	_ "github.com/leapstack-labs/modelq/pkg/dialects/duckdb"
	_ "github.com/leapstack-labs/modelq/pkg/dialects/postgres"
)

func TestRegisteredDialects(t *testing.T) {
	assert.Equal(t, []string{"ansi", "bigquery", "duckdb", "postgres"}, dialect.List())
}

func TestGetIsCaseInsensitive(t *testing.T) {
	d, err := dialect.Get("DuckDB")
	require.NoError(t, err)
	assert.Equal(t, "duckdb", d.Name())
}

func TestGetUnknown(t *testing.T) {
	_, err := dialect.Get("oracle")
	var unknownErr *dialect.UnknownDialectError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "oracle", unknownErr.Name)
	assert.Contains(t, unknownErr.Available, "duckdb")
	assert.Contains(t, err.Error(), "oracle")
}

func TestUnsupportedError(t *testing.T) {
	d, err := dialect.Get("ansi")
	require.NoError(t, err)
	e := dialect.Unsupported(d, "frobnication")
	var unsupported *dialect.UnsupportedOperationError
	require.ErrorAs(t, e, &unsupported)
	assert.Equal(t, "ansi", unsupported.Dialect)
	assert.Contains(t, e.Error(), "frobnication")
}
