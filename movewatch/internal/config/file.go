// Package config handles movewatch configuration from a YAML file, with
// selector tables optionally versioned in SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/movewatch/movewatch/internal/extract"
)

// Config is the top-level movewatch configuration.
type Config struct {
	Browser         BrowserConfig     `yaml:"browser"`
	Page            PageConfig        `yaml:"page"`
	Backend         BackendConfig     `yaml:"backend"`
	Selectors       extract.Selectors `yaml:"selectors"`
	Anchors         AnchorConfig      `yaml:"anchors"`
	SelectorDB      string            `yaml:"selector_db"`
	SelectorVersion string            `yaml:"selector_version"` // "" = active set
	Debounce        DebounceConfig    `yaml:"debounce"`
	Dispatch        DispatchConfig    `yaml:"dispatch"`
	Journal         JournalConfig     `yaml:"journal"`
	Admin           AdminConfig       `yaml:"admin"`
	Sinks           []SinkConfig      `yaml:"sinks"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// PageConfig is the game page to drive.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// BackendConfig locates the analysis backend.
type BackendConfig struct {
	BaseURL   string        `yaml:"base_url"`
	StreamURL string        `yaml:"stream_url"`
	Timeout   time.Duration `yaml:"timeout"`
	// Overlay disables the engine panel when false.
	Overlay *bool `yaml:"overlay"`
}

// AnchorConfig selects the containers the overlay depends on.
type AnchorConfig struct {
	Board string `yaml:"board" json:"board"` // presence triggers mounting
	Host  string `yaml:"host" json:"host"`   // receives the panel
}

// DebounceConfig controls mutation batching in the browser feed.
type DebounceConfig struct {
	Window time.Duration `yaml:"window"`
}

// DispatchConfig sizes the dispatch queue.
type DispatchConfig struct {
	Queue int `yaml:"queue"`
}

// JournalConfig enables the sqlite dispatch journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// AdminConfig enables the admin HTTP surface.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// SinkConfig defines an extra output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | backend
	URL  string `yaml:"url"`  // for backend: base URL of another ingestion service
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadSelectorSetFile reads one selector set from YAML, for storing with
// SaveSelectorSet. Every selector must be given.
func LoadSelectorSetFile(path string) (*SelectorSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var s SelectorSet
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config: parse selector set: %w", err)
	}
	return &s, nil
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// OverlayEnabled reports whether the engine panel is mounted.
func (c *Config) OverlayEnabled() bool {
	return c.Backend.Overlay == nil || *c.Backend.Overlay
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Page.URL == "" {
		c.Page.URL = "https://www.chess.com/play/computer"
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:5000"
	}
	if c.Backend.StreamURL == "" {
		c.Backend.StreamURL = "ws://localhost:5000/stream"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 10 * time.Second
	}

	def := extract.DefaultSelectors()
	if c.Selectors.MoveList == "" {
		c.Selectors.MoveList = def.MoveList
	}
	if c.Selectors.MoveRows == "" {
		c.Selectors.MoveRows = def.MoveRows
	}
	if c.Selectors.WhiteMove == "" {
		c.Selectors.WhiteMove = def.WhiteMove
	}
	if c.Selectors.BlackMove == "" {
		c.Selectors.BlackMove = def.BlackMove
	}
	if c.Anchors.Board == "" {
		c.Anchors.Board = "#board-layout-chessboard"
	}
	if c.Anchors.Host == "" {
		c.Anchors.Host = "#board-layout-main"
	}

	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 50 * time.Millisecond
	}
	if c.Dispatch.Queue <= 0 {
		c.Dispatch.Queue = 64
	}
}
