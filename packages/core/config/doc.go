// Package config handles configuration loading and management for stepwise.
//
// It provides functionality for:
//   - Loading configuration from .stepwise.config.json or .stepwise.yaml files
//   - Default configuration values
//   - Merging command line overrides over file settings
package config
