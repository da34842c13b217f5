package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/memvfs/internal/util"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	// DefaultAllocatorBlockSize is the bitmap width used by both the inode
	// and descriptor allocators.
	DefaultAllocatorBlockSize = 32

	// DefaultAllocatorAllowShrinking controls whether emptied allocator
	// subtrees are dropped for later re-creation.
	DefaultAllocatorAllowShrinking = false

	// DefaultLogLevel is the zerolog level new filesystems log at.
	DefaultLogLevel = util.InfoLevel
)

// Config contains runtime configuration values for an in-memory filesystem.
type Config struct {
	AllocatorBlockSize      int            // bitmap width for id allocation (Default 32)
	AllocatorAllowShrinking bool           // drop emptied allocator subtrees (Default false)
	LogLevel                util.LogLevel  // component logger verbosity (Default InfoLevel)
	Mount                   MountOptions   // FUSE mount settings, used only by fuseserver
	ManifestPath            string         // optional manifest file path; not read by memvfs.New or cmd/memvfsd
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		AllocatorBlockSize:      DefaultAllocatorBlockSize,
		AllocatorAllowShrinking: DefaultAllocatorAllowShrinking,
		LogLevel:                DefaultLogLevel,
	}
}

// ConfigOverride uses pointer fields to distinguish between unset and zero
// values when loading partial configuration. See [Config] for field
// descriptions.
type ConfigOverride struct {
	AllocatorBlockSize      *int          `yaml:"allocator_block_size,omitempty" json:"allocator_block_size,omitempty"`
	AllocatorAllowShrinking *bool         `yaml:"allocator_allow_shrinking,omitempty" json:"allocator_allow_shrinking,omitempty"`
	LogLevel                *int          `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	ManifestPath            *string       `yaml:"manifest_path,omitempty" json:"manifest_path,omitempty"`
	Mount                   *MountOptions `yaml:"mount,omitempty" json:"mount,omitempty"`
}

// Merge applies non-nil values from override onto this Config. This allows
// partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.AllocatorBlockSize != nil {
		c.AllocatorBlockSize = *override.AllocatorBlockSize
	}
	if override.AllocatorAllowShrinking != nil {
		c.AllocatorAllowShrinking = *override.AllocatorAllowShrinking
	}
	if override.LogLevel != nil {
		c.LogLevel = *override.LogLevel
	}
	if override.ManifestPath != nil {
		c.ManifestPath = *override.ManifestPath
	}
	if override.Mount != nil {
		c.Mount = *override.Mount
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without
// merging. Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with
// defaults. This is a convenience function combining NewDefaultConfig,
// LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
