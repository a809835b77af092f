// Package store defines interfaces for task persistence operations.
// These interfaces abstract the underlying storage mechanism from the
// application's core logic, allowing the orchestration rules to remain
// independent of specific database technologies or persistence details.
package store
