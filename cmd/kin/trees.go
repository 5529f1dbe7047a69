package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/infrastructure/config"
	"github.com/ersonp/kin-core/internal/infrastructure/observability"
)

func newTreesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trees",
		Short: "Manage family trees",
		RunE:  runTreesList,
	}

	cmd.AddCommand(
		newTreesListCmd(),
		newTreesCreateCmd(),
		newTreesDeleteCmd(),
	)

	return cmd
}

func newTreesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all family trees",
		RunE:  runTreesList,
	}
}

func runTreesList(_ *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	trees, err := config.LoadTrees(cwd)
	if err != nil {
		return fmt.Errorf("loading trees: %w", err)
	}

	if len(trees.Trees) == 0 {
		fmt.Println("No trees configured.")
		fmt.Println("Use 'kin trees create NAME' to create a tree.")
		return nil
	}

	fmt.Printf("%-20s %-20s %s\n", "NAME", "KEY", "DESCRIPTION")
	fmt.Printf("%-20s %-20s %s\n", "----", "---", "-----------")

	for _, name := range trees.Names() {
		tree := trees.Trees[name]
		fmt.Printf("%-20s %-20s %s\n", name, tree.Key, tree.Description)
	}

	return nil
}

func newTreesCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new family tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTreesCreate(cmd, args[0], description)
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Tree description")

	return cmd
}

func runTreesCreate(cmd *cobra.Command, name, description string) error {
	ctx := cmd.Context()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	if !config.Exists(cwd) {
		if err := config.WriteDefault(cwd); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}
		fmt.Printf("Initialized kin in %s\n", config.ConfigDir(cwd))
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	trees, err := config.LoadTrees(cwd)
	if err != nil {
		return fmt.Errorf("loading trees: %w", err)
	}

	key, err := addTree(trees, name, description)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Logging)
	defer observability.Sync(logger)

	store, err := openStore(ctx, cwd, cfg, trees, name, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	if err := trees.Save(cwd); err != nil {
		return fmt.Errorf("saving trees: %w", err)
	}

	fmt.Printf("Created tree %q with key %q\n", name, key)

	return nil
}

// addTree registers a new tree and returns its storage key. Keys must stay
// unique because shared backends scope rows by key.
func addTree(trees *config.TreesConfig, name, description string) (string, error) {
	if trees.Exists(name) {
		return "", fmt.Errorf("tree %q already exists", name)
	}

	key := config.SanitizeTreeName(name)
	for _, other := range trees.Names() {
		if trees.Trees[other].Key == key {
			return "", fmt.Errorf("tree %q already uses key %q", other, key)
		}
	}

	trees.Add(name, config.TreeEntry{Key: key, Description: description})
	return key, nil
}

func newTreesDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a family tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTreesDelete(cmd, args[0], force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete even if the tree has members")

	return cmd
}

func runTreesDelete(cmd *cobra.Command, name string, force bool) error {
	ctx := cmd.Context()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	trees, err := config.LoadTrees(cwd)
	if err != nil {
		return fmt.Errorf("loading trees: %w", err)
	}
	if !trees.Exists(name) {
		return fmt.Errorf("tree %q not found", name)
	}

	logger := observability.NewLogger(cfg.Logging)
	defer observability.Sync(logger)

	removed, err := clearTree(ctx, cwd, cfg, trees, name, force, logger)
	if err != nil {
		return err
	}

	if cfg.Store.Driver == config.DriverSQLite && cfg.SQLite.Path == "" {
		if err := os.RemoveAll(config.TreeDir(cwd, name)); err != nil {
			fmt.Printf("Warning: could not remove tree directory: %v\n", err)
		}
	}

	trees.Remove(name)
	if err := trees.Save(cwd); err != nil {
		return fmt.Errorf("saving trees: %w", err)
	}

	logger.Info("tree deleted", zap.String("tree", name), zap.Int("members", removed))
	fmt.Printf("Deleted tree %q (%d members removed)\n", name, removed)

	return nil
}

// clearTree removes every member of a tree and returns how many were removed.
// A tree with members is left untouched unless force is set.
func clearTree(
	ctx context.Context,
	cwd string,
	cfg *config.Config,
	trees *config.TreesConfig,
	name string,
	force bool,
	logger *zap.Logger,
) (int, error) {
	store, err := openStore(ctx, cwd, cfg, trees, name, logger)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return 0, fmt.Errorf("checking schema: %w", err)
	}

	persons, err := store.ListPersons(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing members: %w", err)
	}

	if len(persons) > 0 && !force {
		return 0, fmt.Errorf("tree %q has %d members (use --force to delete anyway)", name, len(persons))
	}

	for _, p := range persons {
		if _, err := store.DeleteRelationshipsByPerson(ctx, p.ID); err != nil {
			return 0, fmt.Errorf("removing relationships of %s: %w", p.ID, err)
		}
		if err := store.DeletePerson(ctx, p.ID); err != nil {
			return 0, fmt.Errorf("removing member %s: %w", p.ID, err)
		}
	}

	return len(persons), nil
}
