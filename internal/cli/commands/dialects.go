package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/modelq/pkg/adapter"
	"github.com/leapstack-labs/modelq/pkg/dialect"
	"github.com/spf13/cobra"
)

// NewDialectsCommand creates the dialects command, listing every
// registered dialect and which adapters run it.
func NewDialectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List registered SQL dialects and adapters",
		Run: func(cmd *cobra.Command, _ []string) {
			adaptersByDialect := make(map[string][]string)
			for _, name := range adapter.List() {
				factory, ok := adapter.Get(name)
				if !ok {
					continue
				}
				d := factory(nil).DialectName()
				adaptersByDialect[d] = append(adaptersByDialect[d], name)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Dialect", "Adapters"})
			for _, name := range dialect.List() {
				adapters := "-"
				if list := adaptersByDialect[name]; len(list) > 0 {
					adapters = join(list)
				}
				t.AppendRow(table.Row{name, adapters})
			}
			t.Render()
		},
	}
}

func join(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
