package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/leapstack-labs/modelq/pkg/compile"
	"github.com/leapstack-labs/modelq/pkg/model"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewCompileCommand creates the compile command. It decodes serialized
// models and prints the SQL each one compiles to.
func NewCompileCommand() *cobra.Command {
	var (
		files       []string
		dialectName string
	)

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile serialized models to SQL",
		Long: `Compile reads one or more serialized models (JSON files produced by
model.Encode) and prints the SQL each compiles to.

With --dialect the models compile for that dialect; otherwise each model
compiles for the dialect of its own connection.`,
		Example: `  modelq compile -f orders.json
  modelq compile -f orders.json -f funnel.json --dialect postgres`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(files) == 0 {
				return fmt.Errorf("no model files given; use -f")
			}

			results := make([]string, len(files))
			var g errgroup.Group
			for i, path := range files {
				g.Go(func() error {
					data, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("read %s: %w", path, err)
					}
					m, err := model.Decode(data)
					if err != nil {
						return fmt.Errorf("decode %s: %w", path, err)
					}

					var sql string
					if dialectName != "" {
						sql, err = compile.Compile(m, dialectName)
					} else {
						sql, err = compile.CompileFor(m)
					}
					if err != nil {
						return fmt.Errorf("compile %s: %w", path, err)
					}
					results[i] = sql
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, sql := range results {
				if len(files) > 1 {
					_, _ = fmt.Fprintf(out, "-- %s\n", files[i])
				}
				_, _ = fmt.Fprintln(out, strings.TrimRight(sql, "\n"))
				if len(files) > 1 && i < len(files)-1 {
					_, _ = fmt.Fprintln(out)
				}
			}
			slog.Debug("compiled models", "count", len(files))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Serialized model file (repeatable)")
	cmd.Flags().StringVar(&dialectName, "dialect", "", "Compile for this dialect instead of each model's connection dialect")

	return cmd
}
