package config

import (
	"github.com/abdul-hamid-achik/stepwise/packages/core/classifier"
	"github.com/abdul-hamid-achik/stepwise/packages/core/executor"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Concurrency:       executor.DefaultConcurrency,
		Parallel:          BoolPtr(false),
		Reporters:         []string{"console"},
		DryRun:            BoolPtr(false),
		Bail:              BoolPtr(false),
		Verbose:           BoolPtr(false),
		NoColor:           BoolPtr(false),
		StackTraces:       BoolPtr(false),
		SkipIndicators:    []string{classifier.IndicatorSkip},
		PendingIndicators: []string{classifier.IndicatorPending},
		Shell:             "sh",
	}
}

// Classifier builds the error classifier described by the configuration
func (c *Config) Classifier() *classifier.Classifier {
	return classifier.FromIndicators(c.SkipIndicators, c.PendingIndicators,
		classifier.Policy{StackTraces: c.GetStackTraces()})
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.Concurrency == defaults.Concurrency &&
		c.GetParallel() == defaults.GetParallel() &&
		c.StartRate == defaults.StartRate &&
		c.TestTimeout == defaults.TestTimeout &&
		len(c.Tags) == 0 &&
		len(c.ExcludeTags) == 0 &&
		c.GetDryRun() == defaults.GetDryRun() &&
		c.GetBail() == defaults.GetBail() &&
		c.GetVerbose() == defaults.GetVerbose() &&
		c.GetNoColor() == defaults.GetNoColor() &&
		c.GetStackTraces() == defaults.GetStackTraces() &&
		c.Shell == defaults.Shell &&
		c.EnvFile == defaults.EnvFile &&
		c.Reporting == nil
}
