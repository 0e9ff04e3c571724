package chunk

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/quadview/quadview/pkg/errors"
)

// Environment variables recognized by FromEnv. They override file and
// default values, which keeps deterministic test runs one export away.
const (
	EnvSynchronous   = "QUADVIEW_SYNC"
	EnvNumWorkers    = "QUADVIEW_NUM_WORKERS"
	EnvCacheFraction = "QUADVIEW_CACHE_FRACTION"
)

// Defaults.
const (
	DefaultCacheMemFraction = 0.1
	DefaultTileSize         = 64
	DefaultAncestorLevels   = 3

	// fallbackCacheBytes is used when the system memory query fails.
	fallbackCacheBytes = 512 << 20
)

// Config configures a Loader and the octree selector built on top of it.
// The zero value is not usable; start from DefaultConfig.
type Config struct {
	// CacheMemFraction sizes the chunk cache as a fraction of total system
	// memory. Ignored when CacheBytes is set.
	CacheMemFraction float64 `toml:"cache_mem_fraction"`

	// CacheBytes is an explicit cache bound in bytes. Zero means derive
	// from CacheMemFraction.
	CacheBytes int64 `toml:"cache_bytes"`

	// NumWorkers is the worker pool size. Zero derives from the CPU count.
	NumWorkers int `toml:"num_workers"`

	// Synchronous forces every load to run inline on the calling
	// goroutine; Load never returns Pending. Debug/test mode.
	Synchronous bool `toml:"synchronous"`

	// TileSize is the edge length of pyramid tiles.
	TileSize int `toml:"tile_size"`

	// AncestorLevels is how many coarser levels the LOD selector searches
	// for coverage above the ideal level.
	AncestorLevels int `toml:"ancestor_levels"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		CacheMemFraction: DefaultCacheMemFraction,
		TileSize:         DefaultTileSize,
		AncestorLevels:   DefaultAncestorLevels,
	}
}

// LoadConfig decodes a TOML config file over the defaults. Unknown keys
// are rejected so typos surface instead of silently using defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv applies environment overrides to cfg and returns the result.
func FromEnv(cfg Config) Config {
	if v := os.Getenv(EnvSynchronous); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Synchronous = b
		}
	}
	if v := os.Getenv(EnvNumWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NumWorkers = n
		}
	}
	if v := os.Getenv(EnvCacheFraction); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.CacheMemFraction = f
		}
	}
	return cfg
}

// Validate checks the configuration for values the loader cannot work with.
func (c Config) Validate() error {
	if c.CacheBytes == 0 && (c.CacheMemFraction <= 0 || c.CacheMemFraction > 1) {
		return errors.New(errors.ErrCodeInvalidConfig, "cache_mem_fraction must be in (0, 1], got %g", c.CacheMemFraction)
	}
	if c.CacheBytes < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache_bytes must be non-negative, got %d", c.CacheBytes)
	}
	if c.NumWorkers < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "num_workers must be non-negative, got %d", c.NumWorkers)
	}
	if c.TileSize <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "tile_size must be positive, got %d", c.TileSize)
	}
	if c.AncestorLevels < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "ancestor_levels must be non-negative, got %d", c.AncestorLevels)
	}
	return nil
}

// CacheCapacity resolves the configured cache bound in bytes. When sizing
// by memory fraction, a failed system query falls back to a conservative
// fixed bound rather than erroring; cache sizing is not worth failing
// startup over.
func (c Config) CacheCapacity() int64 {
	if c.CacheBytes > 0 {
		return c.CacheBytes
	}
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		return fallbackCacheBytes
	}
	return int64(float64(vm.Total) * c.CacheMemFraction)
}
