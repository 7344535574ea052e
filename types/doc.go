// Package types defines the core domain types and interfaces shared across
// the subscription coordination library.
//
// Keeping these definitions in a leaf package allows internal packages to
// depend on them without importing the root nakadi package, avoiding import
// cycles while the root package re-exports the public surface via aliases.
package types
