package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hospital-backup/internal/api"
	"hospital-backup/internal/backup"
	"hospital-backup/internal/config"
	"hospital-backup/internal/database"
	appErrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
	"hospital-backup/internal/schedule"
	"hospital-backup/internal/store"
)

// Options customizes how the application is assembled
type Options struct {
	// Logger replaces the logger built from the logging section
	Logger *logging.Logger
	// Databases opens the tenant database; defaults to database.NewServiceWithLogger
	Databases database.DatabaseService
}

// Application owns every long-lived component of one CLI invocation
type Application struct {
	config    *config.Config
	logger    *logging.Logger
	databases database.DatabaseService
	tenantDB  *sql.DB
	store     *store.Store
	metrics   *backup.MetricsCollector
	audit     *backup.BackupLogger
	service   *api.Service
}

// New validates cfg, connects to the tenant database and the metadata store and wires the
// backup manager, the schedule service and runner and the API facade.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, appErrors.NewValidationError("configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.NewLogger(cfg.Logging.LoggerConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	databases := opts.Databases
	if databases == nil {
		databases = database.NewServiceWithLogger(logger)
	}

	app := &Application{
		config:    cfg,
		logger:    logger,
		databases: databases,
		metrics:   backup.NewMetricsCollector(),
	}

	if err := app.wire(ctx); err != nil {
		app.closeResources()
		return nil, err
	}
	return app, nil
}

func (app *Application) wire(ctx context.Context) error {
	cfg := app.config

	db, dialect, err := app.databases.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	app.tenantDB = db

	st, err := store.Open(cfg.Metadata, app.logger)
	if err != nil {
		return err
	}
	app.store = st

	app.audit, err = backup.NewBackupLogger(backup.BackupLoggerConfig{
		Logger:         app.logger,
		AuditLogFile:   cfg.Backup.AuditFile,
		EnableAuditLog: cfg.Backup.AuditFile != "",
	})
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	replicator, err := app.newReplicator()
	if err != nil {
		return err
	}

	tenants := cfg.Tenants.Resolver(db)

	manager, err := backup.NewManager(backup.ManagerConfig{
		DB:                db,
		Dialect:           dialect,
		Repository:        st.Backups(),
		Tenants:           tenants,
		Paths:             backup.NewPathResolver(cfg.Backup.Root, cfg.Backup.ForeignPrefix, cfg.Backup.AcceptedRoots...),
		ExcludeTables:     cfg.Backup.ExcludeTables,
		ValidateOnRestore: cfg.Backup.ValidateOnRestore,
		Replicator:        replicator,
		Metrics:           app.metrics,
		Audit:             app.audit,
		Logger:            app.logger,
	})
	if err != nil {
		return err
	}

	schedules, err := schedule.NewService(schedule.ServiceConfig{
		Repository: st.Schedules(),
		Tenants:    tenants,
		Logger:     app.logger,
	})
	if err != nil {
		return err
	}

	runner, err := schedule.NewRunner(schedule.RunnerConfig{
		Service: schedules,
		Backups: manager,
		Metrics: app.metrics,
		Logger:  app.logger,
	})
	if err != nil {
		return err
	}

	app.service, err = api.NewService(api.Config{
		Backups:    manager,
		Schedules:  schedules,
		Runner:     runner,
		Replicator: replicator,
		Logger:     app.logger,
	})
	return err
}

// newReplicator builds the off-site replicator; the vault client is only created for vault: key references
func (app *Application) newReplicator() (*backup.Replicator, error) {
	offsite := app.config.Offsite

	var secrets backup.SecretReader
	if strings.HasPrefix(offsite.EncryptionKeyRef, "vault:") {
		reader, err := backup.NewVaultSecretReader(app.config.Vault)
		if err != nil {
			return nil, err
		}
		secrets = reader
	}

	encryption := backup.NewEncryptionManager(backup.NewKeyResolver(secrets))
	return backup.NewReplicator(backup.NewStorageProviderFactory(offsite), encryption, offsite, app.logger), nil
}

// API returns the operation facade
func (app *Application) API() *api.Service {
	return app.service
}

// Principal returns the configured operator identity
func (app *Application) Principal() backup.Principal {
	return app.config.Principal()
}

// GetLogger returns the application logger
func (app *Application) GetLogger() *logging.Logger {
	return app.logger
}

// Metrics returns the collectors shared by the manager and the runner
func (app *Application) Metrics() *backup.MetricsCollector {
	return app.metrics
}

// HandleSignals returns a context canceled on SIGINT or SIGTERM. A running restore sees the
// cancellation between statements and records FAILED instead of being killed mid-session.
func (app *Application) HandleSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			app.logger.WithField("signal", sig.String()).Warn("Received shutdown signal, cancelling current operation")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Shutdown writes the metrics textfile and releases the database handles
func (app *Application) Shutdown() error {
	app.logger.Debug("Shutting down application")

	var errs []error
	if path := app.config.Metrics.TextfilePath; path != "" {
		if err := app.metrics.WriteToTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics textfile: %w", err))
		}
	}
	errs = append(errs, app.closeResources()...)
	return errors.Join(errs...)
}

func (app *Application) closeResources() []error {
	var errs []error
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			errs = append(errs, err)
		}
		app.store = nil
	}
	if app.tenantDB != nil {
		if err := app.databases.Close(app.tenantDB); err != nil {
			errs = append(errs, err)
		}
		app.tenantDB = nil
	}
	return errs
}

// HandleError writes the user-facing message and troubleshooting hints for err to w
func HandleError(w io.Writer, logger *logging.Logger, err error) {
	if err == nil {
		return
	}

	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) {
		fmt.Fprintf(w, "Error: %s\n", err.Error())
		return
	}

	fmt.Fprintf(w, "Error: %s\n", appErr.GetUserMessage())
	if logger != nil {
		logger.WithFields(map[string]interface{}{
			"error_type":  string(appErr.Type),
			"recoverable": appErr.IsRecoverable(),
			"context":     appErr.Context,
		}).Debug("Command failed")
	}
	provideTroubleshootingHints(w, appErr.Type)
}

// TroubleshootingHints returns operator hints for an error type
func TroubleshootingHints(errorType appErrors.ErrorType) []string {
	switch errorType {
	case appErrors.ErrorTypeConnection:
		return []string{
			"Check that the database server is running",
			"Verify the host and port in the database section",
			"Ensure network connectivity to the database server",
		}
	case appErrors.ErrorTypePermission:
		return []string{
			"Verify the database username and password",
			"Check that the backup user can read every table and run DDL for restores",
			"Check write permissions on the backup root directory",
		}
	case appErrors.ErrorTypeAccessDenied:
		return []string{
			"Run the command with --operator and --roles ADMIN, SUPER_ADMIN or SYSTEM",
			"Or set operator.roles in the configuration file",
		}
	case appErrors.ErrorTypeValidation:
		return []string{
			"Review the command line arguments",
			"Run 'hospital-backup config check' to validate the configuration",
		}
	case appErrors.ErrorTypeMissingArtifact, appErrors.ErrorTypeInvalidArtifact:
		return []string{
			"Check that the dump file still exists under the backup root",
			"If a secondary location was recorded, check the off-site credentials so the replica can be fetched",
		}
	case appErrors.ErrorTypeIntegrityMismatch:
		return []string{
			"The dump or the database changed since the backup was recorded",
			"Verify the backup again, or restore from the secondary copy",
		}
	case appErrors.ErrorTypeBrokenChain:
		return []string{
			"The COMPLETE backup this chain depends on is missing or failed",
			"Take a new COMPLETE backup before the next incremental run",
		}
	case appErrors.ErrorTypeFatalExecution:
		return []string{
			"The restore stopped before finishing and the backup was marked FAILED",
			"Check the database server log and re-run the restore",
		}
	case appErrors.ErrorTypeTimeout:
		return []string{
			"The operation took longer than expected",
			"Increase database.timeout or check database server performance",
		}
	case appErrors.ErrorTypeStorage, appErrors.ErrorTypeEncryption:
		return []string{
			"Check the offsite credentials and the encryption key reference",
		}
	}
	return nil
}

func provideTroubleshootingHints(w io.Writer, errorType appErrors.ErrorType) {
	hints := TroubleshootingHints(errorType)
	if len(hints) == 0 {
		return
	}
	fmt.Fprintf(w, "\nTroubleshooting hints:\n")
	for _, hint := range hints {
		fmt.Fprintf(w, "- %s\n", hint)
	}
}
