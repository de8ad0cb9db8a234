package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/memdump-analysis/pkg/telemetry"
	"github.com/memdump-analysis/pkg/utils"
)

const (
	defaultMaxConns  = 10
	pingTimeout      = 10 * time.Second
	slowSQLThreshold = 500 * time.Millisecond
)

// DBConfig selects and sizes the task database.
type DBConfig struct {
	Type     string `mapstructure:"type"` // postgres, mysql or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"` // file path for sqlite
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
	LogSQL   bool   `mapstructure:"log_sql"`

	// Logger receives SQL traces when LogSQL is set, and slow queries always.
	Logger utils.Logger `mapstructure:"-"`
}

// DBType represents the database type.
type DBType string

const (
	DBTypePostgres DBType = "postgres"
	DBTypeMySQL    DBType = "mysql"
	DBTypeSQLite   DBType = "sqlite"
)

var dbTypeAliases = map[string]DBType{
	"postgresql": DBTypePostgres,
	"sqlite3":    DBTypeSQLite,
}

func (cfg *DBConfig) dbType() DBType {
	if t, ok := dbTypeAliases[cfg.Type]; ok {
		return t
	}
	return DBType(cfg.Type)
}

// Dialector returns the gorm dialector for the configured database.
func (cfg *DBConfig) Dialector() (gorm.Dialector, error) {
	switch cfg.dbType() {
	case DBTypePostgres:
		return postgres.Open(fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)), nil
	case DBTypeMySQL:
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)), nil
	case DBTypeSQLite:
		if cfg.Database == "" {
			return nil, fmt.Errorf("sqlite requires a database file path")
		}
		if cfg.Database != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Database), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(cfg.Database), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// sqlLogWriter feeds gorm's logger into the service logger.
type sqlLogWriter struct{ log utils.Logger }

func (w sqlLogWriter) Printf(format string, args ...interface{}) {
	w.log.Debug(format, args...)
}

func (cfg *DBConfig) gormLogger() gormlogger.Interface {
	if cfg.Logger == nil {
		return gormlogger.Discard
	}
	level := gormlogger.Warn
	if cfg.LogSQL {
		level = gormlogger.Info
	}
	return gormlogger.New(sqlLogWriter{cfg.Logger.WithField("component", "sql")}, gormlogger.Config{
		SlowThreshold:             slowSQLThreshold,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// poolSize caps SQLite at one connection so writes never contend.
func (cfg *DBConfig) poolSize() int {
	switch {
	case cfg.dbType() == DBTypeSQLite:
		return 1
	case cfg.MaxConns > 0:
		return cfg.MaxConns
	default:
		return defaultMaxConns
	}
}

// NewGormDB opens and pings the configured database. SQLite databases are
// migrated on open; server databases are expected to carry the schema.
func NewGormDB(cfg *DBConfig) (*gorm.DB, error) {
	dialector, err := cfg.Dialector()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: cfg.gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if telemetry.Enabled() {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("failed to enable telemetry: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	n := cfg.poolSize()
	sqlDB.SetMaxOpenConns(n)
	sqlDB.SetMaxIdleConns(max(n/2, 1))
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.dbType() == DBTypeSQLite {
		if err := Migrate(db); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Tables()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Repositories bundles the repositories sharing one connection.
type Repositories struct {
	Task       TaskRepository
	Result     ResultRepository
	Suggestion SuggestionRepository

	gormDB *gorm.DB
	dbType string
}

// NewRepositories creates all repositories over gormDB. Results are stamped
// with version.
func NewRepositories(gormDB *gorm.DB, dbType string, version string) *Repositories {
	return &Repositories{
		Task:       NewGormTaskRepository(gormDB),
		Result:     NewGormResultRepository(gormDB, version),
		Suggestion: NewGormSuggestionRepository(gormDB),
		gormDB:     gormDB,
		dbType:     dbType,
	}
}

func (r *Repositories) Type() string     { return r.dbType }
func (r *Repositories) GormDB() *gorm.DB { return r.gormDB }

// DB returns the pooled connection, or nil once gorm cannot provide it.
func (r *Repositories) DB() *sql.DB {
	sqlDB, err := r.gormDB.DB()
	if err != nil {
		return nil
	}
	return sqlDB
}

func (r *Repositories) Close() error {
	if sqlDB := r.DB(); sqlDB != nil {
		return sqlDB.Close()
	}
	return nil
}

// HealthCheck pings the database.
func (r *Repositories) HealthCheck(ctx context.Context) error {
	sqlDB, err := r.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
