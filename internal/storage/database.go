package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"scribeit/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB pairs a connection pool with the dialect it speaks.
type DB struct {
	*sql.DB
	driver string
}

// Open connects to the configured database for dbType (sqlite3, mysql or postgres).
func Open(dbType string, cfg *config.Config) (*DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	driver := normalizeDriver(dbType)
	switch driver {
	case "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if dbCfg.DSN == ":memory:" {
			// every pooled connection would otherwise get its own empty database
			db.SetMaxOpenConns(1)
		}
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case "postgres":
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: db, driver: driver}, nil
}

// Driver reports the normalized driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
func (db *DB) Rebind(query string) string {
	if db.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func normalizeDriver(dbType string) string {
	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return strings.ToLower(dbType)
	}
}

// Migrate ensures the required tables are present.
func Migrate(db *DB) error {
	var stmts []string
	switch db.driver {
	case "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS web_sessions (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL,
				display_name TEXT NOT NULL DEFAULT '',
				access_token TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_web_sessions_expiry ON web_sessions(expires_at)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS web_sessions (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				email VARCHAR(255) NOT NULL,
				display_name VARCHAR(255) NOT NULL DEFAULT '',
				access_token TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				INDEX idx_web_sessions_expiry (expires_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case "postgres":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS web_sessions (
				id VARCHAR(64) PRIMARY KEY,
				email VARCHAR(255) NOT NULL,
				display_name VARCHAR(255) NOT NULL DEFAULT '',
				access_token TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_web_sessions_expiry ON web_sessions(expires_at)`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", db.driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", db.driver, err)
		}
	}
	return nil
}
