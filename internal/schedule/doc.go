// Package schedule manages recurring backup policies: when they fire next, who edited them
// and how their runs went. Runner executes the due policies through a backup.Manager.
package schedule
