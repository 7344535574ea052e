// Package validation materializes per-event-type validator chains from
// named validation strategies.
//
// A Registry is constructed with the set of known strategies and builds one
// EventTypeValidator per event type from an ordered list of strategy
// configurations. Validators run in configuration order and the first
// rejection wins.
//
// Registries are plain values with no process-wide state; tests and embedded
// deployments construct as many as they need.
package validation
