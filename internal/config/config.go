package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	repoConfigFileName   = ".gityank.yml"
	homeConfigFolderName = "gityank"
	homeConfigFileName   = "config.yml"

	defaultStartPoint   = "master"
	defaultPush         = false
	defaultSafe         = false
	defaultSkipApplied  = false
	defaultBranchPrefix = ""

	envStartPoint   = "GITYANK_START_POINT"
	envPush         = "GITYANK_PUSH"
	envSafe         = "GITYANK_SAFE"
	envSkipApplied  = "GITYANK_SKIP_APPLIED"
	envBranchPrefix = "GITYANK_BRANCH_PREFIX"
)

// Config captures user-defined defaults for gityank. Command-line flags
// always outrank these values.
type Config struct {
	StartPoint   string
	Push         bool
	Safe         bool
	SkipApplied  bool
	BranchPrefix string
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	return &Config{
		StartPoint:   defaultStartPoint,
		Push:         defaultPush,
		Safe:         defaultSafe,
		SkipApplied:  defaultSkipApplied,
		BranchPrefix: defaultBranchPrefix,
	}
}

// Load resolves configuration based on the provided repository path.
// It checks, in order, for a config file in the repository, within the
// user config directory, then environment variables, and finally falls
// back to defaults.
func Load(path string) (*Config, error) {
	base := Default()

	repoConfigPath, err := resolveRepoConfigPath(path)
	if err != nil {
		return nil, err
	}

	if fileCfg, err := loadFileConfig(repoConfigPath); err != nil {
		return nil, err
	} else if fileCfg != nil {
		fileCfg.applyTo(base)
		return base, nil
	}

	if fileCfg, err := loadHomeConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	} else if fileCfg != nil {
		fileCfg.applyTo(base)
		return base, nil
	}

	if envCfg, err := loadEnvConfig(); err != nil {
		return nil, err
	} else if envCfg != nil {
		envCfg.applyTo(base)
		return base, nil
	}

	return base, nil
}

func resolveRepoConfigPath(path string) (string, error) {
	if path == "" {
		var err error
		path, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}

	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return filepath.Join(path, repoConfigFileName), nil
		}
		return path, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return filepath.Join(path, repoConfigFileName), nil
	}

	return "", err
}

type fileConfig struct {
	StartPoint        *string `yaml:"startPoint"`
	StartPointSnake   *string `yaml:"start_point"`
	Push              *bool   `yaml:"push"`
	Safe              *bool   `yaml:"safe"`
	SkipApplied       *bool   `yaml:"skipApplied"`
	SkipAppliedSnake  *bool   `yaml:"skip_applied"`
	BranchPrefix      *string `yaml:"branchPrefix"`
	BranchPrefixSnake *string `yaml:"branch_prefix"`
}

func (f *fileConfig) applyTo(cfg *Config) {
	if str := firstString(f.StartPoint, f.StartPointSnake); str != nil {
		cfg.StartPoint = *str
	}

	if b := firstBool(f.Push, nil); b != nil {
		cfg.Push = *b
	}

	if b := firstBool(f.Safe, nil); b != nil {
		cfg.Safe = *b
	}

	if b := firstBool(f.SkipApplied, f.SkipAppliedSnake); b != nil {
		cfg.SkipApplied = *b
	}

	if str := firstString(f.BranchPrefix, f.BranchPrefixSnake); str != nil {
		cfg.BranchPrefix = *str
	}
}

func firstString(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstBool(values ...*bool) *bool {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func loadFileConfig(path string) (*fileConfig, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadHomeConfig() (*fileConfig, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(dir) == "" {
		return nil, fs.ErrNotExist
	}

	path := filepath.Join(dir, homeConfigFolderName, homeConfigFileName)
	return loadFileConfig(path)
}

func loadEnvConfig() (*fileConfig, error) {
	var cfg fileConfig
	var hasValue bool

	if v, ok := lookupString(envStartPoint); ok {
		cfg.StartPoint = &v
		hasValue = true
	}

	if b, ok, err := lookupBool(envPush); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", envPush, err)
	} else if ok {
		cfg.Push = &b
		hasValue = true
	}

	if b, ok, err := lookupBool(envSafe); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", envSafe, err)
	} else if ok {
		cfg.Safe = &b
		hasValue = true
	}

	if b, ok, err := lookupBool(envSkipApplied); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", envSkipApplied, err)
	} else if ok {
		cfg.SkipApplied = &b
		hasValue = true
	}

	if v, ok := lookupString(envBranchPrefix); ok {
		cfg.BranchPrefix = &v
		hasValue = true
	}

	if !hasValue {
		return nil, nil
	}
	return &cfg, nil
}

func lookupString(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	}
	return "", false
}

func lookupBool(key string) (bool, bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false, nil
	}

	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return false, false, nil
	}

	b, err := strconv.ParseBool(trimmed)
	if err != nil {
		return false, false, err
	}
	return b, true, nil
}
