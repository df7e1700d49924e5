package movewatch

import (
	"context"
	"fmt"

	"github.com/hazyhaar/movewatch/movewatch/internal/config"
)

// Config is the top-level movewatch configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig is the game page to drive.
type PageConfig = config.PageConfig

// BackendConfig locates the analysis backend.
type BackendConfig = config.BackendConfig

// AnchorConfig selects the containers the overlay depends on.
type AnchorConfig = config.AnchorConfig

// SinkConfig defines an extra output backend.
type SinkConfig = config.SinkConfig

// SelectorSet is one stored version of the page's markup table.
type SelectorSet = config.SelectorSet

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}

// ImportSelectorSet stores the selector set read from the YAML file at
// path into the selector database at dbPath. A running watcher polling the
// same database picks an active set up without a restart.
func ImportSelectorSet(ctx context.Context, dbPath, path string) (*SelectorSet, error) {
	set, err := config.LoadSelectorSetFile(path)
	if err != nil {
		return nil, err
	}
	db, err := config.OpenSelectorDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("movewatch: open selector db: %w", err)
	}
	defer db.Close()
	if err := config.SaveSelectorSet(ctx, db, set); err != nil {
		return nil, err
	}
	return set, nil
}
