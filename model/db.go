package model

import (
	"fmt"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the persistence gateway. Every consumer receives it explicitly;
// there is no process-wide database handle.
type Store struct {
	db     *gorm.DB
	Config *Config
}

// Config is the application configuration, read from config.toml.
type Config struct {
	Basedir                  string
	Mode                     string
	Port                     int
	XMLDir                   string
	MailAPIKey               string
	MailSecret               string
	MailFrom                 string
	PublishingServerAddress  string
	PublishingServerUsername string
	Servers                  map[string]DatabaseServer
	Business                 BusinessConfig
	Invoice                  InvoicePolicy
	Engine                   EngineConfig
}

// DatabaseServer is one [servers.<mode>] block in config.toml.
type DatabaseServer struct {
	Database   string
	DBName     string
	DBUser     string
	DBPassword string
	DBHost     string
	DBLogger   string
}

// BusinessConfig is the issuing company's identity, used by document
// generation only.
type BusinessConfig struct {
	Name        string
	Address1    string
	Address2    string
	City        string
	State       string
	ZIP         string
	CountryCode string
	Phone       string
	Email       string
	VATID       string
	BankName    string
	BankIBAN    string
	BankBIC     string
}

// InvoicePolicy holds the defaults applied to new invoices. Rates are plain
// config inputs; all arithmetic on them happens in decimals.
type InvoicePolicy struct {
	DueDays               int
	TaxRate               float64
	DefaultCommissionRate float64
}

// EngineConfig sizes the reconciliation worker pool.
type EngineConfig struct {
	Workers   int
	QueueSize int
}

func gormLoggerFor(cfg *Config, svr DatabaseServer) *gorm.Config {
	gormConfig := &gorm.Config{}
	switch svr.DBLogger {
	case "info":
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	case "silent":
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	default:
		if cfg.Mode == "development" {
			gormConfig.Logger = logger.Default.LogMode(logger.Info)
		} else {
			gormConfig.Logger = logger.Default.LogMode(logger.Silent)
		}
	}
	return gormConfig
}

func (s *Store) autoMigrate() error {
	for _, m := range []any{
		&Client{},
		&Item{},
		&Invoice{},
		&LineItem{},
		&Payment{},
		&APIToken{},
	} {
		if err := s.db.AutoMigrate(m); err != nil {
			return err
		}
	}
	// Numbers are unique once assigned; drafts share the empty string.
	s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_number
         ON invoices(number) WHERE number <> ''`)

	// Backfill for databases written by earlier revisions, where status was
	// free text and cancellation was a status value rather than a flag.
	s.db.Exec(`UPDATE invoices SET status = 'sent' WHERE status IN ('pending', 'unpaid', 'issued')`)
	s.db.Exec(`UPDATE invoices SET status = 'paid' WHERE status = 'completed'`)
	s.db.Exec(`UPDATE invoices SET cancelled = true, status = 'cancelled' WHERE status IN ('voided', 'cancelled')`)
	return nil
}

// InitDatabase opens the configured database, migrates the schema, and
// returns the Store. A connection failure at this point is fatal: the
// application must not operate against an unreachable or half-migrated
// store.
func InitDatabase(cfg *Config) (*Store, error) {
	var err error

	s := &Store{Config: cfg}
	svr := cfg.Servers[cfg.Mode]

	switch svr.Database {
	case "sqlite3":
		filename := svr.DBName
		if filename != ":memory:" {
			filename = filepath.Join("db", svr.DBName)
		}
		s.db, err = gorm.Open(sqlite.Open(filename), gormLoggerFor(cfg, svr))
		if err == nil && svr.DBName == ":memory:" {
			// every pooled connection would otherwise see its own empty database
			if sqlDB, dbErr := s.db.DB(); dbErr == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	case "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=5432 sslmode=disable TimeZone=UTC",
			svr.DBHost, svr.DBUser, svr.DBPassword, svr.DBName)
		s.db, err = gorm.Open(postgres.Open(dsn), gormLoggerFor(cfg, svr))
	default:
		err = fmt.Errorf("unsupported database %q", svr.Database)
	}
	if err != nil {
		return nil, &InitError{Err: err}
	}
	if err = s.autoMigrate(); err != nil {
		return nil, &InitError{Err: err}
	}
	return s, nil
}

// Transaction runs fn against a transaction-scoped Store. Rolls back when fn
// returns an error, commits otherwise.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, Config: s.Config})
	})
}
