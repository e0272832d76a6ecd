package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Config represents the stepwise configuration
type Config struct {
	// Number of test cases run at once
	Concurrency       int        `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	Parallel          *bool      `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	// Test cases started per second, 0 is unlimited
	StartRate         float64    `json:"startRate,omitempty" yaml:"startRate,omitempty"`
	// Per test case, in milliseconds
	TestTimeout       int        `json:"testTimeout,omitempty" yaml:"testTimeout,omitempty"`
	Tags              []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	ExcludeTags       []string   `json:"excludeTags,omitempty" yaml:"excludeTags,omitempty"`
	DryRun            *bool      `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`
	Bail              *bool      `json:"bail,omitempty" yaml:"bail,omitempty"`
	// Output reporters
	Reporters         []string   `json:"reporters,omitempty" yaml:"reporters,omitempty"`
	OutputFile        string     `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
	Verbose           *bool      `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	NoColor           *bool      `json:"noColor,omitempty" yaml:"noColor,omitempty"`
	StackTraces       *bool      `json:"stackTraces,omitempty" yaml:"stackTraces,omitempty"`
	SkipIndicators    []string   `json:"skipIndicators,omitempty" yaml:"skipIndicators,omitempty"`
	PendingIndicators []string   `json:"pendingIndicators,omitempty" yaml:"pendingIndicators,omitempty"`
	// Shell used by shell steps
	Shell             string     `json:"shell,omitempty" yaml:"shell,omitempty"`
	EnvFile           string     `json:"envFile,omitempty" yaml:"envFile,omitempty"`
	Reporting         *Reporting `json:"reporting,omitempty" yaml:"reporting,omitempty"`
}

// Reporting toggles the parts of the console report.
type Reporting struct {
	Summary *bool `json:"summary,omitempty" yaml:"summary,omitempty"`
	Errors  *bool `json:"errors,omitempty" yaml:"errors,omitempty"`
	Cycle   *bool `json:"cycle,omitempty" yaml:"cycle,omitempty"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetParallel returns the parallel setting, defaulting to false
func (c *Config) GetParallel() bool {
	return getBool(c.Parallel, false)
}

// GetDryRun returns the dry run setting, defaulting to false
func (c *Config) GetDryRun() bool {
	return getBool(c.DryRun, false)
}

// GetBail returns the bail setting, defaulting to false
func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetStackTraces returns whether failures carry stack traces, defaulting to false
func (c *Config) GetStackTraces() bool {
	return getBool(c.StackTraces, false)
}

// GetReportSummary returns whether the summary is printed, defaulting to true
func (c *Config) GetReportSummary() bool {
	if c.Reporting == nil {
		return true
	}
	return getBool(c.Reporting.Summary, true)
}

// GetReportErrors returns whether failure details are printed, defaulting to true
func (c *Config) GetReportErrors() bool {
	if c.Reporting == nil {
		return true
	}
	return getBool(c.Reporting.Errors, true)
}

// GetReportCycle returns whether every step is printed as it finishes, defaulting to false
func (c *Config) GetReportCycle() bool {
	if c.Reporting == nil {
		return false
	}
	return getBool(c.Reporting.Cycle, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".stepwise.config.json",
	"stepwise.config.json",
	".stepwise.yaml",
	".stepwise.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Validate rejects values the executor cannot work with
func (c *Config) Validate() error {
	var errs []error
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency))
	}
	if c.StartRate < 0 {
		errs = append(errs, fmt.Errorf("startRate must not be negative, got %g", c.StartRate))
	}
	if c.TestTimeout < 0 {
		errs = append(errs, fmt.Errorf("testTimeout must not be negative, got %d", c.TestTimeout))
	}
	return errors.Join(errs...)
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}
	if other.StartRate > 0 {
		result.StartRate = other.StartRate
	}
	if other.TestTimeout > 0 {
		result.TestTimeout = other.TestTimeout
	}
	if other.OutputFile != "" {
		result.OutputFile = other.OutputFile
	}
	if other.Shell != "" {
		result.Shell = other.Shell
	}
	if other.EnvFile != "" {
		result.EnvFile = other.EnvFile
	}

	// Boolean flags - only override if explicitly set in other config
	if other.Parallel != nil {
		result.Parallel = other.Parallel
	}
	if other.DryRun != nil {
		result.DryRun = other.DryRun
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}
	if other.StackTraces != nil {
		result.StackTraces = other.StackTraces
	}

	if other.Reporting != nil {
		merged := Reporting{}
		if result.Reporting != nil {
			merged = *result.Reporting
		}
		if other.Reporting.Summary != nil {
			merged.Summary = other.Reporting.Summary
		}
		if other.Reporting.Errors != nil {
			merged.Errors = other.Reporting.Errors
		}
		if other.Reporting.Cycle != nil {
			merged.Cycle = other.Reporting.Cycle
		}
		result.Reporting = &merged
	}

	// Lists replace rather than append
	if len(other.Tags) > 0 {
		result.Tags = other.Tags
	}
	if len(other.ExcludeTags) > 0 {
		result.ExcludeTags = other.ExcludeTags
	}
	if len(other.Reporters) > 0 {
		result.Reporters = other.Reporters
	}
	if len(other.SkipIndicators) > 0 {
		result.SkipIndicators = other.SkipIndicators
	}
	if len(other.PendingIndicators) > 0 {
		result.PendingIndicators = other.PendingIndicators
	}

	return &result
}

// SaveConfig saves the configuration to a file, as YAML when the extension asks for it
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
