package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/application/handlers"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/domain/services"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
	"github.com/ersonp/kin-core/internal/infrastructure/observability"
	"github.com/ersonp/kin-core/internal/infrastructure/relationaldb/postgres"
	"github.com/ersonp/kin-core/internal/infrastructure/relationaldb/sqlite"
	"github.com/ersonp/kin-core/internal/infrastructure/relationaldb/supabase"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config              *config.Config
	Tree                string
	Logger              *zap.Logger
	PersonHandler       *handlers.PersonHandler
	RelationshipHandler *handlers.RelationshipHandler
	SuggestionHandler   *handlers.SuggestionHandler
	ImportHandler       *handlers.ImportHandler
}

// internalDeps holds all dependencies including low-level components.
// Used internally by helper functions.
type internalDeps struct {
	Deps
	store ports.Store
}

// withDeps loads config and builds dependencies, then calls the provided function.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(&d.Deps)
	})
}

// withInternalDeps provides access to all dependencies including the store.
func withInternalDeps(ctx context.Context, fn func(*internalDeps) error) error {
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

	tree, err := resolveTree(trees, globalTree)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Logging)
	defer observability.Sync(logger)
	logger = logger.With(zap.String("tree", tree))

	store, err := openStore(ctx, cwd, cfg, trees, tree, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	e := cfg.Engine
	relationshipService := services.NewRelationshipService(store, services.RelationshipOptions{
		Policy:            e.Policy(),
		ReciprocalRetries: e.ReciprocalRetries,
		CascadeDelete:     e.CascadeReciprocalDelete,
	}, logger)
	personService := services.NewPersonService(store, logger)
	suggestionService := services.NewSuggestionService(store, relationshipService, e.SuggestOptions(), logger)
	importService := services.NewImportService(store, relationshipService, logger)

	deps := &internalDeps{
		Deps: Deps{
			Config:              cfg,
			Tree:                tree,
			Logger:              logger,
			PersonHandler:       handlers.NewPersonHandler(personService, relationshipService),
			RelationshipHandler: handlers.NewRelationshipHandler(relationshipService, store),
			SuggestionHandler:   handlers.NewSuggestionHandler(suggestionService),
			ImportHandler:       handlers.NewImportHandler(importService),
		},
		store: store,
	}

	return fn(deps)
}

// withStore provides direct store access for commands like export.
func withStore(ctx context.Context, fn func(ports.Store) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(d.store)
	})
}

// withPersonHandler provides access to the PersonHandler for member commands.
func withPersonHandler(ctx context.Context, fn func(*handlers.PersonHandler) error) error {
	return withDeps(ctx, func(d *Deps) error {
		return fn(d.PersonHandler)
	})
}

// withRelationshipHandler provides access to the RelationshipHandler for relationship commands.
func withRelationshipHandler(ctx context.Context, fn func(*handlers.RelationshipHandler) error) error {
	return withDeps(ctx, func(d *Deps) error {
		return fn(d.RelationshipHandler)
	})
}

// resolveTree picks the tree named by --tree, or the only configured tree.
func resolveTree(trees *config.TreesConfig, name string) (string, error) {
	if name != "" {
		if _, err := trees.Get(name); err != nil {
			return "", err
		}
		return name, nil
	}

	names := trees.Names()
	switch len(names) {
	case 0:
		return "", errors.New("no trees configured (run 'kin init' or 'kin trees create <name>')")
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("several trees configured, pick one with --tree (available: %v)", names)
	}
}

// openStore opens the backend selected by the store driver for one tree.
func openStore(
	ctx context.Context,
	basePath string,
	cfg *config.Config,
	trees *config.TreesConfig,
	tree string,
	logger *zap.Logger,
) (ports.Store, error) {
	entry, err := trees.Get(tree)
	if err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		repo, err := postgres.Connect(ctx, cfg.Postgres, entry.Key, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return repo, nil

	case config.DriverSupabase:
		repo, err := supabase.NewRepository(cfg.Supabase, entry.Key, logger)
		if err != nil {
			return nil, fmt.Errorf("creating supabase repository: %w", err)
		}
		return repo, nil

	default:
		path, err := sqlitePath(basePath, cfg.SQLite, trees, tree)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating tree directory: %w", err)
		}
		repo, err := sqlite.NewRepository(config.SQLiteConfig{Path: path})
		if err != nil {
			return nil, fmt.Errorf("creating sqlite repository: %w", err)
		}
		return repo, nil
	}
}

// sqlitePath picks the database file for tree. An explicit path is one file,
// so it is refused once several trees are configured.
func sqlitePath(basePath string, cfg config.SQLiteConfig, trees *config.TreesConfig, tree string) (string, error) {
	if cfg.Path == "" {
		return config.SQLitePathForTree(basePath, tree), nil
	}
	if n := len(trees.Trees); n > 1 {
		return "", fmt.Errorf("sqlite.path is set but %d trees are configured; remove it so each tree gets its own database", n)
	}
	return cfg.Path, nil
}

// storeOpener adapts openStore for handlers that open a tree's store themselves.
func storeOpener(ctx context.Context, basePath string, logger *zap.Logger) handlers.StoreOpener {
	return func(cfg *config.Config, tree string) (ports.Store, error) {
		trees, err := config.LoadTrees(basePath)
		if err != nil {
			return nil, fmt.Errorf("loading trees: %w", err)
		}
		return openStore(ctx, basePath, cfg, trees, tree, logger)
	}
}
