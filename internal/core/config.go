package core

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jo-hoe/goscratch/internal/backend/commands"
	"github.com/jo-hoe/goscratch/internal/backend/commandstructure"
	"github.com/jo-hoe/goscratch/internal/backend/imagescale"
	"github.com/jo-hoe/goscratch/internal/backend/store"
	"github.com/jo-hoe/goscratch/internal/grid"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort        = 8080
	DefaultImageSource = "/assets/default.svg"
	defaultStoreType   = "sqlite"
	defaultSQLitePath  = "goscratch.db"
)

type Store struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
	Namespace        string `yaml:"namespace"`
	QuotaBytes       int    `yaml:"quotaBytes"`
}

type Grid struct {
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`
}

type Image struct {
	MaxWidth      int    `yaml:"maxWidth"`
	MaxHeight     int    `yaml:"maxHeight"`
	Interpolation string `yaml:"interpolation"`
	// MaxUploadBytes bounds the size of an uploaded file before decoding.
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`
	// MaxPixels bounds the decoded size of an uploaded raster image.
	MaxPixels int `yaml:"maxPixels"`
	// Commands replaces the default PNG conversion and bound scaling pipeline.
	Commands []commandstructure.CommandConfig `yaml:"commands"`
}

type ServiceConfig struct {
	Port         int    `yaml:"port"`
	Store        Store  `yaml:"store"`
	Grid         Grid   `yaml:"grid"`
	Image        Image  `yaml:"image"`
	DefaultImage string `yaml:"defaultImage"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *ServiceConfig {
	config := &ServiceConfig{}
	config.applyDefaults()
	return config
}

// LoadConfig loads configuration from the specified YAML file. A missing file
// yields the defaults.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("config file not found; using defaults", "path", configPath)
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config content and fills in defaults.
func ParseConfig(data []byte) (*ServiceConfig, error) {
	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Store.Type == "" {
		c.Store.Type = defaultStoreType
		if c.Store.ConnectionString == "" {
			c.Store.ConnectionString = defaultSQLitePath
		}
	}
	if c.Store.Namespace == "" {
		c.Store.Namespace = store.DefaultNamespace
	}
	if c.Store.QuotaBytes == 0 {
		c.Store.QuotaBytes = store.DefaultQuotaBytes
	}
	if c.Grid.Rows == 0 {
		c.Grid.Rows = grid.DefaultRows
	}
	if c.Grid.Cols == 0 {
		c.Grid.Cols = grid.DefaultCols
	}
	if c.Image.MaxWidth == 0 {
		c.Image.MaxWidth = commands.DefaultMaxWidth
	}
	if c.Image.MaxHeight == 0 {
		c.Image.MaxHeight = commands.DefaultMaxHeight
	}
	if c.Image.Interpolation == "" {
		c.Image.Interpolation = commands.DefaultInterpolation
	}
	if c.Image.MaxUploadBytes == 0 {
		c.Image.MaxUploadBytes = 32 << 20
	}
	if c.Image.MaxPixels == 0 {
		c.Image.MaxPixels = commands.DefaultMaxPixels
	}
	if len(c.Image.Commands) == 0 {
		c.Image.Commands = imagescale.DefaultCommands(c.Image.MaxWidth, c.Image.MaxHeight, c.Image.MaxPixels, c.Image.Interpolation)
	}
	if c.DefaultImage == "" {
		c.DefaultImage = DefaultImageSource
	}
}

func (c *ServiceConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.Grid.Rows < 1 || c.Grid.Cols < 1 {
		return fmt.Errorf("grid must have at least one cell, got %dx%d", c.Grid.Rows, c.Grid.Cols)
	}
	if c.Image.MaxWidth < 1 || c.Image.MaxHeight < 1 {
		return fmt.Errorf("image bounds must be positive, got %dx%d", c.Image.MaxWidth, c.Image.MaxHeight)
	}
	if c.Image.MaxUploadBytes < 0 {
		return fmt.Errorf("image upload limit must not be negative, got %d", c.Image.MaxUploadBytes)
	}
	if c.Image.MaxPixels < 0 {
		return fmt.Errorf("image pixel limit must not be negative, got %d", c.Image.MaxPixels)
	}
	if c.Store.QuotaBytes < 0 {
		return fmt.Errorf("store quota must not be negative, got %d", c.Store.QuotaBytes)
	}
	return validateCommands(c.Image.Commands)
}

// StoreOptions maps the store section onto backend options.
func (c *ServiceConfig) StoreOptions() store.Options {
	return store.Options{
		Type:             c.Store.Type,
		ConnectionString: c.Store.ConnectionString,
		Namespace:        c.Store.Namespace,
		QuotaBytes:       c.Store.QuotaBytes,
	}
}

// validateCommands ensures all command configurations have required fields
func validateCommands(cmds []commandstructure.CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range cmds {
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true
	}

	return nil
}
