// Command modelq compiles serialized semantic models to SQL and runs them
// against configured database targets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/modelq/internal/cli"

	// Dialects register themselves on import.
	_ "github.com/leapstack-labs/modelq/pkg/dialects/ansi"
	_ "github.com/leapstack-labs/modelq/pkg/dialects/bigquery"
	_ "github.com/leapstack-labs/modelq/pkg/dialects/duckdb"
	_ "github.com/leapstack-labs/modelq/pkg/dialects/postgres"

	// Adapters register themselves on import.
	_ "github.com/leapstack-labs/modelq/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/modelq/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/modelq/pkg/adapters/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
