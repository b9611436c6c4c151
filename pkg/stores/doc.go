// Package stores provides the durable status store for the platform.
// It includes SQLite-based storage with WAL mode, connection pooling,
// embedded migrations, and CRUD operations for app records and the
// platform-wide system status row.
package stores
