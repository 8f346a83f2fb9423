package adapter_test

import (
	"testing"

	"github.com/leapstack-labs/modelq/internal/testutil"
	"github.com/leapstack-labs/modelq/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/modelq/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/modelq/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/modelq/pkg/adapters/sqlite"
)

func TestRegisteredAdapters(t *testing.T) {
	assert.Equal(t, []string{"duckdb", "postgres", "sqlite"}, adapter.List())
	for _, name := range adapter.List() {
		assert.True(t, adapter.IsRegistered(name))
	}
}

func TestNewFromConfig(t *testing.T) {
	a, err := adapter.New(adapter.Config{Type: "postgres"}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "postgres", a.DialectName())
}

func TestNewRejectsEmptyType(t *testing.T) {
	_, err := adapter.New(adapter.Config{}, nil)
	require.Error(t, err)
}

func TestNewUnknownType(t *testing.T) {
	_, err := adapter.New(adapter.Config{Type: "oracle"}, nil)
	var unknownErr *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "oracle", unknownErr.Type)
	assert.Contains(t, unknownErr.Available, "duckdb")
}

func TestDialectNames(t *testing.T) {
	tests := []struct {
		adapterName string
		dialectName string
	}{
		{"duckdb", "duckdb"},
		{"postgres", "postgres"},
		{"sqlite", "ansi"},
	}
	for _, tt := range tests {
		t.Run(tt.adapterName, func(t *testing.T) {
			factory, ok := adapter.Get(tt.adapterName)
			require.True(t, ok)
			assert.Equal(t, tt.dialectName, factory(nil).DialectName())
		})
	}
}
