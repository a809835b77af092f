// Package postgres implements the task store interfaces using a
// PostgreSQL database as the storage backend.
package postgres
