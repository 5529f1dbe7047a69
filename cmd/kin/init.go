package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
	"github.com/ersonp/kin-core/internal/infrastructure/observability"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize kin in the current directory",
		Long: `Writes a default .kin/config.yaml and creates a first family tree.
The tree is named by --tree, or "family" when the flag is omitted.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	tree := globalTree
	if tree == "" {
		tree = defaultTreeName
	}

	logger := observability.NewLogger(config.Default().Logging)
	defer observability.Sync(logger)

	result, err := handlers.NewInitHandler(storeOpener(ctx, cwd, logger)).Handle(ctx, cwd, tree)
	if err != nil {
		return err
	}

	fmt.Printf("Initialized kin in %s\n", config.ConfigDir(cwd))
	fmt.Printf("  config: %s\n", result.ConfigPath)
	fmt.Printf("  tree:   %s (%s store)\n", result.Tree, result.Driver)
	return nil
}
