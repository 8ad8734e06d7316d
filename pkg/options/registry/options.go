// Package registry provides configuration options for the fragment
// registry database.
package registry

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/pflag"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Driver names accepted by Options.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options defines configuration options for the registry database.
type Options struct {
	Driver string `json:"driver" mapstructure:"driver"`

	// Path is the sqlite database file. ":memory:" keeps the registry
	// in process memory.
	Path string `json:"path" mapstructure:"path"`

	Host                  string        `json:"host" mapstructure:"host"`
	Port                  int           `json:"port" mapstructure:"port"`
	Username              string        `json:"username" mapstructure:"username"`
	Password              string        `json:"-" mapstructure:"password"`
	Database              string        `json:"database" mapstructure:"database"`
	SSLMode               string        `json:"ssl-mode" mapstructure:"ssl-mode"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Driver:                DriverSQLite,
		Path:                  "data/lumen.db",
		Host:                  "127.0.0.1",
		Port:                  5432,
		Username:              "postgres",
		SSLMode:               "disable",
		MaxIdleConnections:    10,
		MaxOpenConnections:    100,
		MaxConnectionLifeTime: 10 * time.Second,
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	switch o.Driver {
	case DriverSQLite:
		if o.Path == "" {
			return fmt.Errorf("registry path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if o.Database == "" {
			return fmt.Errorf("registry database must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("registry driver must be %s or %s, got %q", DriverSQLite, DriverPostgres, o.Driver)
	}
	return nil
}

// DSN returns the postgres connection string.
func (o *Options) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		o.Host, o.Port, o.Username, o.Password, o.Database, o.SSLMode)
}

// Open opens the registry database with the configured driver.
func (o *Options) Open() (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch o.Driver {
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(o.Path), cfg)
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(o.DSN()), cfg)
	default:
		return nil, fmt.Errorf("unknown registry driver %q", o.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	if o.Driver == DriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxIdleConns(o.MaxIdleConnections)
		sqlDB.SetMaxOpenConns(o.MaxOpenConnections)
		sqlDB.SetConnMaxLifetime(o.MaxConnectionLifeTime)
	}
	return db, nil
}

// AddFlags adds flags for registry options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Driver, "registry.driver", o.Driver, "Registry database driver (sqlite|postgres)")
	fs.StringVar(&o.Path, "registry.path", o.Path, "SQLite database file path")
	fs.StringVar(&o.Host, "registry.host", o.Host, "PostgreSQL host")
	fs.IntVar(&o.Port, "registry.port", o.Port, "PostgreSQL port")
	fs.StringVar(&o.Username, "registry.username", o.Username, "PostgreSQL username")
	fs.StringVar(&o.Password, "registry.password", o.Password, "PostgreSQL password")
	fs.StringVar(&o.Database, "registry.database", o.Database, "PostgreSQL database")
	fs.StringVar(&o.SSLMode, "registry.ssl-mode", o.SSLMode, "PostgreSQL SSL mode")
	fs.IntVar(&o.MaxIdleConnections, "registry.max-idle-connections", o.MaxIdleConnections, "PostgreSQL max idle connections")
	fs.IntVar(&o.MaxOpenConnections, "registry.max-open-connections", o.MaxOpenConnections, "PostgreSQL max open connections")
	fs.DurationVar(&o.MaxConnectionLifeTime, "registry.max-connection-life-time", o.MaxConnectionLifeTime, "PostgreSQL max connection life time")
}
