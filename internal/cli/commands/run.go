package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/modelq/internal/config"
	"github.com/leapstack-labs/modelq/pkg/adapter"
	"github.com/leapstack-labs/modelq/pkg/compile"
	"github.com/leapstack-labs/modelq/pkg/dialect"
	"github.com/leapstack-labs/modelq/pkg/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewRunCommand creates the run command: compile a serialized model for a
// configured target and execute it there.
func NewRunCommand() *cobra.Command {
	var (
		file       string
		configPath string
		showSQL    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a serialized model against a configured target",
		Long: `Run decodes a serialized model, compiles it for the target's dialect,
executes the SQL there, and prints the result set.

The target comes from modelq.yaml (found in the current directory or any
parent, or named with --config) and is picked with --target, falling back
to default_target.`,
		Example: `  modelq run -f orders.json
  modelq run -f funnel.json --target prod`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return fmt.Errorf("no model file given; use -f")
			}

			// --target overlays default_target through the flag provider.
			cfg, err := loadProjectConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			target, err := cfg.Target("")
			if err != nil {
				return err
			}
			if err := target.Validate(); err != nil {
				return err
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			m, err := model.Decode(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", file, err)
			}

			runID := uuid.New().String()
			logger := slog.Default().With("run_id", runID)

			a, err := adapter.New(target.ToAdapterConfig(), logger)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.Connect(ctx, target.ToAdapterConfig()); err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			d, err := dialect.Get(a.DialectName())
			if err != nil {
				return err
			}
			sql, err := compile.CompileWith(m, d)
			if err != nil {
				return fmt.Errorf("compile %s: %w", file, err)
			}
			logger.Debug("executing", "dialect", a.DialectName(), "sql", sql)

			if showSQL {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), sql)
				_, _ = fmt.Fprintln(cmd.OutOrStdout())
			}

			rows, err := a.Query(ctx, sql)
			if err != nil {
				return fmt.Errorf("execute query: %w", err)
			}
			cols, values, err := rows.ReadAll()
			if err != nil {
				return err
			}

			renderResult(cmd, cols, values)
			logger.Debug("query finished", "rows", len(values))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Serialized model file")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to modelq.yaml (default: search upward from cwd)")
	// Read through the config layer: the flag overlays default_target, so
	// one lookup below covers flag, environment, and file.
	cmd.Flags().StringP("target", "t", "", "Target name from modelq.yaml (default: default_target)")
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "Print the compiled SQL before the results")

	return cmd
}

func loadProjectConfig(path string, flags *pflag.FlagSet) (*config.ProjectConfig, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root := config.FindProjectRoot(cwd)
		if root == "" {
			return nil, fmt.Errorf("no %s found in %s or any parent directory", config.ConfigFileName, cwd)
		}
		path = filepath.Join(root, config.ConfigFileName)
		if _, err := os.Stat(path); err != nil {
			path = filepath.Join(root, config.ConfigFileNameAlt)
		}
	}
	return config.LoadFileWithFlags(path, flags)
}

func renderResult(cmd *cobra.Command, cols []string, rows [][]any) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, row := range rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			if v == nil {
				out[i] = "NULL"
			} else {
				out[i] = v
			}
		}
		t.AppendRow(out)
	}

	t.Render()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "(%d rows)\n", len(rows))
}
