// Package store keeps backup and schedule records in a gorm-managed database: SQLite by
// default, MySQL or PostgreSQL when configured.
package store
