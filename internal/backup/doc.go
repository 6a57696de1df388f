// Package backup implements point-in-time backups of a hospital tenant's database and their
// restore.
//
// A backup run fingerprints the data source (StatsCalculator), writes a replayable SQL script
// (DumpGenerator) under a directory derived from a logical location (PathResolver) and persists
// a BackupMetadata record through a Repository. Records move through the lifecycle
//
//	PENDING -> SUCCESS | FAILED
//	SUCCESS | VERIFIED | RESTORED -> VERIFIED | RESTORING
//	RESTORING -> RESTORED | FAILED
//
// Core Components:
//
// - Manager: orchestrates creation, status updates, verification, chain resolution and restores
// - ChainResolver: lists the backups an INCREMENTAL or DIFFERENTIAL restore depends on
// - RestoreExecutor: replays a dump on one session with integrity checks disabled
// - Replicator: compresses, encrypts and uploads dumps to S3, Azure, GCS or a local volume
//
// Example usage:
//
//	manager, err := backup.NewManager(backup.ManagerConfig{
//		DB:         db,
//		Dialect:    dialect,
//		Repository: repo,
//		Paths:      backup.NewPathResolver("/var/backups/hospital", ""),
//	})
//	result, err := manager.CreateBackup(ctx, backup.SystemPrincipal("scheduler"), backup.CreateRequest{
//		TenantID:        "chu-nord",
//		Type:            backup.BackupTypeComplete,
//		PrimaryLocation: "/backups/2026-01-18",
//	})
package backup
