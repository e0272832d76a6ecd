// Package env handles variables for stepwise manifests.
//
// It provides functionality for:
//   - Loading .env files
//   - Selecting a named environment declared in a manifest
//   - Placeholder interpolation using {{variable}} syntax
//   - Template functions such as uuid(), now() and random(min, max)
//   - Values captured by earlier steps
package env
