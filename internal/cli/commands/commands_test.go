package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/modelq/pkg/expr"
	"github.com/leapstack-labs/modelq/pkg/model"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/modelq/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/modelq/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/modelq/pkg/adapters/sqlite"
	_ "github.com/leapstack-labs/modelq/pkg/dialects/ansi"
	_ "github.com/leapstack-labs/modelq/pkg/dialects/bigquery"
	_ "github.com/leapstack-labs/modelq/pkg/dialects/duckdb"
	_ "github.com/leapstack-labs/modelq/pkg/dialects/postgres"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeModelFile(t *testing.T, name string, m *model.Model) string {
	t.Helper()
	data, err := model.Encode(m)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func ordersFixture(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Table(model.NewConnection("wh", "duckdb"), "orders").
		Filter(expr.Gt(expr.Col("price"), 10))
	require.NoError(t, err)
	return m
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, NewVersionCommand("1.2.3", "abc1234"))
	require.NoError(t, err)
	assert.Equal(t, "modelq v1.2.3 (abc1234)\n", out)
}

func TestDialectsCommand(t *testing.T) {
	out, err := execute(t, NewDialectsCommand())
	require.NoError(t, err)
	for _, name := range []string{"ansi", "bigquery", "duckdb", "postgres", "sqlite"} {
		assert.Contains(t, out, name)
	}
}

func TestCompileCommand(t *testing.T) {
	path := writeModelFile(t, "orders.json", ordersFixture(t))
	out, err := execute(t, NewCompileCommand(), "-f", path)
	require.NoError(t, err)
	assert.Equal(t, "SELECT *\nFROM \"orders\"\nWHERE (\"price\" > 10)\n", out)
}

func TestCompileCommandDialectOverride(t *testing.T) {
	path := writeModelFile(t, "orders.json", ordersFixture(t))
	out, err := execute(t, NewCompileCommand(), "-f", path, "--dialect", "bigquery")
	require.NoError(t, err)
	assert.Contains(t, out, "FROM `orders`")
}

func TestCompileCommandMultipleFilesKeepInputOrder(t *testing.T) {
	first := writeModelFile(t, "first.json", ordersFixture(t))
	second := writeModelFile(t, "second.json",
		model.Table(model.NewConnection("wh", "duckdb"), "customers"))

	out, err := execute(t, NewCompileCommand(), "-f", first, "-f", second)
	require.NoError(t, err)
	assert.Contains(t, out, "-- "+first)
	assert.Contains(t, out, "-- "+second)
	assert.Less(t, bytes.Index([]byte(out), []byte("orders")), bytes.Index([]byte(out), []byte("customers")))
}

func TestCompileCommandRequiresFiles(t *testing.T) {
	_, err := execute(t, NewCompileCommand())
	require.Error(t, err)
}

func TestCompileCommandBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not a model"), 0o644))
	_, err := execute(t, NewCompileCommand(), "-f", path)
	require.Error(t, err)
}

func TestCompileCommandUnknownDialect(t *testing.T) {
	path := writeModelFile(t, "orders.json", ordersFixture(t))
	_, err := execute(t, NewCompileCommand(), "-f", path, "--dialect", "oracle")
	require.Error(t, err)
}

func TestRunCommandRequiresFile(t *testing.T) {
	_, err := execute(t, NewRunCommand())
	require.Error(t, err)
}

func TestRunCommandTargetFlagSelectsTarget(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "modelq.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("default_target: dev\ntargets:\n  dev:\n    type: duckdb\n    path: dev.duckdb\n"), 0o644))
	path := writeModelFile(t, "orders.json", ordersFixture(t))

	// The flag overlays default_target, so an unknown name surfaces from
	// the target lookup.
	_, err := execute(t, NewRunCommand(), "-f", path, "-c", cfgPath, "--target", "staging")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging")
}

func TestRunCommandMissingConfig(t *testing.T) {
	path := writeModelFile(t, "orders.json", ordersFixture(t))
	_, err := execute(t, NewRunCommand(), "-f", path, "-c", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestRenderResult(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	renderResult(cmd, []string{"step", "count"}, [][]any{
		{"Top of Funnel", int64(120)},
		{"signup", nil},
	})

	assert.Contains(t, out.String(), "STEP")
	assert.Contains(t, out.String(), "Top of Funnel")
	assert.Contains(t, out.String(), "NULL")
	assert.Contains(t, out.String(), "(2 rows)")
}
