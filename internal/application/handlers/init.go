// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

// StoreOpener opens the store backing a tree.
type StoreOpener func(cfg *config.Config, tree string) (ports.Store, error)

// InitHandler initializes a kin workspace.
type InitHandler struct {
	open StoreOpener
}

// NewInitHandler creates a new init handler.
func NewInitHandler(open StoreOpener) *InitHandler {
	return &InitHandler{
		open: open,
	}
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath string
	Tree       string
	Driver     string
}

// Handle writes the default config, registers the first tree and creates
// its schema.
func (h *InitHandler) Handle(ctx context.Context, basePath, treeName string) (*InitResult, error) {
	if config.Exists(basePath) {
		return nil, fmt.Errorf("kin already initialized in %s", basePath)
	}

	if err := config.WriteDefault(basePath); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	trees, err := config.LoadTrees(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading trees: %w", err)
	}
	trees.Add(treeName, config.TreeEntry{Key: config.SanitizeTreeName(treeName)})
	if err := trees.Save(basePath); err != nil {
		return nil, fmt.Errorf("saving trees: %w", err)
	}

	if h.open != nil {
		store, err := h.open(cfg, treeName)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &InitResult{
		ConfigPath: config.ConfigFilePath(basePath),
		Tree:       treeName,
		Driver:     cfg.Store.Driver,
	}, nil
}
