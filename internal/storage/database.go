package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"docsynth/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database configured for dbType.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set sqlite busy timeout: %w", err)
		}
	case "mysql":
		params := dbCfg.Params
		if params == "" {
			params = "parseTime=true&charset=utf8mb4"
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS tenants (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS source_documents (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				title TEXT NOT NULL,
				content TEXT NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS document_assignments (
				tenant_id TEXT NOT NULL,
				document_type TEXT NOT NULL,
				document_id TEXT NOT NULL,
				display_order INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (tenant_id, document_type, document_id),
				FOREIGN KEY(tenant_id) REFERENCES tenants(id) ON DELETE CASCADE,
				FOREIGN KEY(document_id) REFERENCES source_documents(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS document_schemas (
				document_type TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				synthesis_prompt TEXT,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS tenant_transformers (
				tenant_id TEXT NOT NULL,
				document_type TEXT NOT NULL,
				prompt TEXT NOT NULL,
				model TEXT NOT NULL,
				temperature REAL NOT NULL,
				max_tokens INTEGER NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (tenant_id, document_type),
				FOREIGN KEY(tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS synthesis_jobs (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				document_type TEXT NOT NULL,
				status TEXT NOT NULL,
				source_document_ids TEXT NOT NULL,
				source_hash TEXT NOT NULL,
				base_version INTEGER NOT NULL DEFAULT 0,
				forced INTEGER NOT NULL DEFAULT 0,
				claim_key TEXT UNIQUE,
				model_used TEXT NOT NULL DEFAULT '',
				tokens_used INTEGER NOT NULL DEFAULT 0,
				started_at DATETIME NOT NULL,
				completed_at DATETIME,
				duration_ms INTEGER,
				error_message TEXT,
				synthesized_document_id TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_synthesis_jobs_key ON synthesis_jobs(tenant_id, document_type, source_hash)`,
			`CREATE INDEX IF NOT EXISTS idx_synthesis_jobs_running ON synthesis_jobs(status, started_at)`,
			`CREATE TABLE IF NOT EXISTS compiled_documents (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				document_type TEXT NOT NULL,
				title TEXT NOT NULL,
				slug TEXT NOT NULL UNIQUE,
				content TEXT NOT NULL,
				version INTEGER NOT NULL,
				previous_version_id TEXT,
				sources_hash TEXT NOT NULL,
				approval_status TEXT NOT NULL DEFAULT 'draft',
				requires_review INTEGER NOT NULL DEFAULT 1,
				synthesis_job_id TEXT NOT NULL,
				token_count INTEGER NOT NULL DEFAULT 0,
				tier INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				UNIQUE(tenant_id, document_type, version),
				FOREIGN KEY(previous_version_id) REFERENCES compiled_documents(id),
				FOREIGN KEY(synthesis_job_id) REFERENCES synthesis_jobs(id)
			)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS tenants (
				id VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS source_documents (
				id VARCHAR(128) NOT NULL,
				tenant_id VARCHAR(64) NOT NULL,
				title VARCHAR(512) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_source_documents_tenant (tenant_id),
				CONSTRAINT fk_source_documents_tenant FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS document_assignments (
				tenant_id VARCHAR(64) NOT NULL,
				document_type VARCHAR(128) NOT NULL,
				document_id VARCHAR(128) NOT NULL,
				display_order INT NOT NULL DEFAULT 0,
				PRIMARY KEY (tenant_id, document_type, document_id),
				CONSTRAINT fk_assignments_tenant FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE,
				CONSTRAINT fk_assignments_document FOREIGN KEY (document_id) REFERENCES source_documents(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS document_schemas (
				document_type VARCHAR(128) NOT NULL,
				name VARCHAR(255) NOT NULL,
				synthesis_prompt MEDIUMTEXT,
				updated_at DATETIME(6) NOT NULL,
				PRIMARY KEY (document_type)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS tenant_transformers (
				tenant_id VARCHAR(64) NOT NULL,
				document_type VARCHAR(128) NOT NULL,
				prompt MEDIUMTEXT NOT NULL,
				model VARCHAR(128) NOT NULL,
				temperature DOUBLE NOT NULL,
				max_tokens INT NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				PRIMARY KEY (tenant_id, document_type),
				CONSTRAINT fk_transformers_tenant FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS synthesis_jobs (
				id VARCHAR(64) NOT NULL,
				tenant_id VARCHAR(64) NOT NULL,
				document_type VARCHAR(128) NOT NULL,
				status VARCHAR(32) NOT NULL,
				source_document_ids TEXT NOT NULL,
				source_hash VARCHAR(128) NOT NULL,
				base_version INT NOT NULL DEFAULT 0,
				forced TINYINT(1) NOT NULL DEFAULT 0,
				claim_key VARCHAR(512) NULL,
				model_used VARCHAR(128) NOT NULL DEFAULT '',
				tokens_used INT NOT NULL DEFAULT 0,
				started_at DATETIME(6) NOT NULL,
				completed_at DATETIME(6) NULL,
				duration_ms BIGINT NULL,
				error_message TEXT NULL,
				synthesized_document_id VARCHAR(64) NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_synthesis_claim (claim_key),
				INDEX idx_synthesis_jobs_key (tenant_id, document_type, source_hash),
				INDEX idx_synthesis_jobs_running (status, started_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS compiled_documents (
				id VARCHAR(64) NOT NULL,
				tenant_id VARCHAR(64) NOT NULL,
				document_type VARCHAR(128) NOT NULL,
				title VARCHAR(512) NOT NULL,
				slug VARCHAR(255) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				version INT NOT NULL,
				previous_version_id VARCHAR(64) NULL,
				sources_hash VARCHAR(128) NOT NULL,
				approval_status VARCHAR(32) NOT NULL DEFAULT 'draft',
				requires_review TINYINT(1) NOT NULL DEFAULT 1,
				synthesis_job_id VARCHAR(64) NOT NULL,
				token_count INT NOT NULL DEFAULT 0,
				tier INT NOT NULL DEFAULT 1,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_compiled_slug (slug),
				UNIQUE KEY uniq_compiled_version (tenant_id, document_type, version),
				CONSTRAINT fk_compiled_previous FOREIGN KEY (previous_version_id) REFERENCES compiled_documents(id),
				CONSTRAINT fk_compiled_job FOREIGN KEY (synthesis_job_id) REFERENCES synthesis_jobs(id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
