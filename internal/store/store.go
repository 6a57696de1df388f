package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"hospital-backup/internal/backup"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
	"hospital-backup/internal/schedule"
)

// Store owns the metadata database
type Store struct {
	db     *gorm.DB
	config Config
	logger *logging.Logger
}

// Open connects to the metadata database and migrates the schema when configured
func Open(config Config, logger *logging.Logger) (*Store, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	var dialector gorm.Dialector
	switch config.Driver {
	case DriverSQLite:
		dsn := config.DSN
		if dsn == "" {
			dsn = config.Path
		}
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(config.DSN)
	case DriverPostgres:
		dialector = postgres.Open(config.DSN)
	}

	start := time.Now()
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(logger.WithField("component", "metadata"), gormlogger.Config{
			SlowThreshold:             config.SlowThreshold,
			LogLevel:                  gormLogLevel(logger),
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	logger.LogDatabaseConnection(config.Driver, config.Label(), err == nil, time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypeConnection,
			fmt.Sprintf("failed to open metadata store %s", config.Label()), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypeConnection, "failed to access metadata connection pool", err)
	}
	if config.Driver == DriverSQLite {
		// one writer avoids "database is locked"
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	s := &Store{db: db, config: config, logger: logger}
	if config.AutoMigrate {
		if err := s.Migrate(); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	return s, nil
}

func gormLogLevel(logger *logging.Logger) gormlogger.LogLevel {
	switch {
	case logger.IsLevelEnabled(logging.LogLevelDebug):
		return gormlogger.Info
	case logger.IsLevelEnabled(logging.LogLevelNormal):
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

// Migrate creates or updates the backup and schedule tables
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&backup.BackupMetadata{}, &schedule.BackupSchedule{}); err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypeSQL, "failed to migrate metadata schema", err)
	}
	return nil
}

// Backups returns the backup metadata repository
func (s *Store) Backups() *BackupRepository {
	return &BackupRepository{db: s.db}
}

// Schedules returns the backup schedule repository
func (s *Store) Schedules() *ScheduleRepository {
	return &ScheduleRepository{db: s.db}
}

// DB exposes the gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var classifier = apperrors.NewErrorClassifier()

// translate maps gorm and driver errors into the application taxonomy
func translate(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewNotFoundError(notFound, nil)
	}
	appErr := classifier.ClassifyError(err)
	if appErr.Type == apperrors.ErrorTypeUnknown {
		return apperrors.NewAppError(apperrors.ErrorTypeSQL, "metadata query failed", err)
	}
	return appErr
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
