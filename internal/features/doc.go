// Package features provides the feature flag registry and a stateless
// facade over the shared store, with defaults resolved per key when the
// store has no record.
package features
