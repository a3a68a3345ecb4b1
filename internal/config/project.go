package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the name of the per-repository config file.
const ProjectFile = ".pytestify.yaml"

// ProjectConfig represents a .pytestify.yaml file in a repository
type ProjectConfig struct {
	Version string `yaml:"version"`

	// Include globs match base names; Exclude uses .gitignore syntax
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	Output      OutputConfig      `yaml:"output,omitempty"`
	Transform   TransformConfig   `yaml:"transform"`
	Parametrize ParametrizeConfig `yaml:"parametrize,omitempty"`
	Git         GitConfig         `yaml:"git,omitempty"`
}

// OutputConfig controls where converted files go
type OutputConfig struct {
	// Suffix is inserted before ".py"; empty rewrites in place
	Suffix string `yaml:"suffix,omitempty"`

	// Backup keeps the original as <file>.bak when rewriting in place
	Backup bool `yaml:"backup,omitempty"`
}

// TransformConfig toggles individual rewrite passes. Nil leaves the
// default in place.
type TransformConfig struct {
	Assertions           *bool `yaml:"assertions,omitempty"`
	Fixtures             *bool `yaml:"fixtures,omitempty"`
	Decorators           *bool `yaml:"decorators,omitempty"`
	Subtests             *bool `yaml:"subtests,omitempty"`
	Parametrize          *bool `yaml:"parametrize,omitempty"`
	RemoveUnittestImport *bool `yaml:"remove_unittest_import,omitempty"`
	RemoveMainBlock      *bool `yaml:"remove_main_block,omitempty"`
}

// ParametrizeConfig holds sub-test parametrization limits
type ParametrizeConfig struct {
	MaxValues int `yaml:"max_values,omitempty"`
}

// GitConfig holds repository guards
type GitConfig struct {
	// TrackedOnly skips files git does not track
	TrackedOnly bool `yaml:"tracked_only,omitempty"`

	// RequireClean refuses to write into a dirty worktree
	RequireClean bool `yaml:"require_clean,omitempty"`
}

// DefaultProjectConfig returns sensible defaults
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Version: "1.0",
		Include: []string{"test_*.py", "*_test.py"},
		Exclude: []string{
			"**/.venv/**",
			"**/venv/**",
			"**/.tox/**",
			"**/site-packages/**",
		},
		Parametrize: ParametrizeConfig{MaxValues: 20},
	}
}

// Enabled reports the effective value of a pass toggle.
func Enabled(toggle *bool) bool {
	return toggle == nil || *toggle
}

// LoadProjectConfig loads a .pytestify.yaml from the given directory
func LoadProjectConfig(repoPath string) (*ProjectConfig, error) {
	configPath := filepath.Join(repoPath, ProjectFile)

	// Check if config exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Also try .pytestify.yml
		configPath = filepath.Join(repoPath, ".pytestify.yml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return DefaultProjectConfig(), nil
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultProjectConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveProjectConfig saves the config to .pytestify.yaml
func SaveProjectConfig(repoPath string, cfg *ProjectConfig) error {
	configPath := filepath.Join(repoPath, ProjectFile)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// Merge applies overrides from another config (e.g., CLI flags)
func (c *ProjectConfig) Merge(other *ProjectConfig) {
	if other == nil {
		return
	}

	if len(other.Include) > 0 {
		c.Include = other.Include
	}

	if len(other.Exclude) > 0 {
		c.Exclude = other.Exclude
	}

	if other.Output.Suffix != "" {
		c.Output.Suffix = other.Output.Suffix
	}

	if other.Output.Backup {
		c.Output.Backup = true
	}

	mergeToggle(&c.Transform.Assertions, other.Transform.Assertions)
	mergeToggle(&c.Transform.Fixtures, other.Transform.Fixtures)
	mergeToggle(&c.Transform.Decorators, other.Transform.Decorators)
	mergeToggle(&c.Transform.Subtests, other.Transform.Subtests)
	mergeToggle(&c.Transform.Parametrize, other.Transform.Parametrize)
	mergeToggle(&c.Transform.RemoveUnittestImport, other.Transform.RemoveUnittestImport)
	mergeToggle(&c.Transform.RemoveMainBlock, other.Transform.RemoveMainBlock)

	if other.Parametrize.MaxValues != 0 {
		c.Parametrize.MaxValues = other.Parametrize.MaxValues
	}

	if other.Git.TrackedOnly {
		c.Git.TrackedOnly = true
	}

	if other.Git.RequireClean {
		c.Git.RequireClean = true
	}
}

func mergeToggle(dst **bool, src *bool) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
