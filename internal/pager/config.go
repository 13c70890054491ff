package pager

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the enumerated configuration surface for a managed file:
// block size and the minimum length a freshly created file is
// preallocated to.
type Config struct {
	BlockSize        int   `yaml:"block_size"`
	PreallocateBytes int64 `yaml:"preallocate_bytes"`
}

// DefaultConfig returns the design defaults: a 4 KiB block and a 16-block
// preallocation.
func DefaultConfig() Config {
	return Config{
		BlockSize:        DefaultBlockSize,
		PreallocateBytes: 16 * DefaultBlockSize,
	}
}

// normalize fills in zero fields with their defaults and rounds
// PreallocateBytes up to a whole number of blocks, minimum one block.
func (c Config) normalize() (Config, error) {
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.BlockSize < 0 {
		return Config{}, fmt.Errorf("%w: block_size must be positive, got %d", ErrInvalidInput, c.BlockSize)
	}
	if c.PreallocateBytes == 0 {
		c.PreallocateBytes = 16 * int64(c.BlockSize)
	}
	if c.PreallocateBytes < 0 {
		return Config{}, fmt.Errorf("%w: preallocate_bytes must be non-negative, got %d", ErrInvalidInput, c.PreallocateBytes)
	}
	blocks := (c.PreallocateBytes + int64(c.BlockSize) - 1) / int64(c.BlockSize)
	if blocks < 1 {
		blocks = 1
	}
	c.PreallocateBytes = blocks * int64(c.BlockSize)
	return c, nil
}

// LoadConfig reads a YAML document at path and normalizes it. A missing
// file is an error; callers with no config file use DefaultConfig instead.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c.normalize()
}
