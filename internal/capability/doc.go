// Package capability decides whether the keyboard has full access.
//
// The answer comes from a Provider, which may be expensive, and is cached by
// Cache until Invalidate is called. There is no time-based expiry: the UI
// layer invalidates on lifecycle events such as becoming active again.
package capability
