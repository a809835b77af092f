// Package memstore provides an in-memory implementation of the task store,
// suitable for tests and single-process deployments.
package memstore
