package driver

import (
	"os"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"rillc/jit"
	"rillc/runtime/memory"
)

// Config is the full driver configuration, loadable from a TOML file.
type Config struct {
	LogLevel string `toml:"log-level"`

	Opt struct {
		MaxPasses int `toml:"max-passes"`
	} `toml:"opt"`

	Memory struct {
		Capacity       int `toml:"capacity"`
		IdleTTLSeconds int `toml:"idle-ttl-seconds"`
		SweepSeconds   int `toml:"sweep-seconds"`
		AllocRetries   int `toml:"alloc-retries"`
	} `toml:"memory"`

	Jit struct {
		CacheSize        int `toml:"cache-size"`
		CompileTimeoutMS int `toml:"compile-timeout-ms"`
	} `toml:"jit"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	cfg := Config{LogLevel: "warn"}

	cfg.Opt.MaxPasses = 0 // 0 selects the optimizer default

	mem := memory.DefaultConfig()
	cfg.Memory.Capacity = mem.Capacity
	cfg.Memory.IdleTTLSeconds = int(mem.IdleTTL / time.Second)
	cfg.Memory.SweepSeconds = int(mem.SweepInterval / time.Second)
	cfg.Memory.AllocRetries = mem.AllocRetries

	j := jit.DefaultConfig()
	cfg.Jit.CacheSize = j.CacheSize
	cfg.Jit.CompileTimeoutMS = int(j.CompileTimeout / time.Millisecond)

	return cfg
}

// LoadConfig reads a TOML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	buff, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config file %s", path)
	}

	if err := toml.Unmarshal(buff, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config file %s", path)
	}

	return cfg, nil
}

// MemoryConfig converts the TOML shape to the memory manager configuration.
func (cfg Config) MemoryConfig() memory.Config {
	return memory.Config{
		Capacity:      cfg.Memory.Capacity,
		IdleTTL:       time.Duration(cfg.Memory.IdleTTLSeconds) * time.Second,
		SweepInterval: time.Duration(cfg.Memory.SweepSeconds) * time.Second,
		AllocRetries:  cfg.Memory.AllocRetries,
	}
}

// JitConfig converts the TOML shape to the JIT driver configuration.
func (cfg Config) JitConfig() jit.Config {
	return jit.Config{
		CacheSize:      cfg.Jit.CacheSize,
		CompileTimeout: time.Duration(cfg.Jit.CompileTimeoutMS) * time.Millisecond,
	}
}
