package sqlstore

// Email uniqueness is case-insensitive: CITEXT on PostgreSQL, NOCASE on
// SQLite. code_generated_at holds Unix microseconds so both dialects compare
// it numerically.

var postgresSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS citext`,
	`CREATE TABLE IF NOT EXISTS users (
		pk BIGINT PRIMARY KEY,
		portunus_uuid TEXT NOT NULL UNIQUE,
		email CITEXT NOT NULL UNIQUE,
		password TEXT NOT NULL DEFAULT '',
		social_login_provider TEXT NOT NULL DEFAULT '',
		is_staff BOOLEAN NOT NULL DEFAULT false,
		is_superuser BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mfa_methods (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(portunus_uuid) ON DELETE CASCADE,
		type TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT false,
		is_primary BOOLEAN NOT NULL DEFAULT false,
		current_code TEXT NOT NULL DEFAULT '',
		code_generated_at BIGINT NOT NULL DEFAULT 0,
		UNIQUE (user_id, type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mfa_methods_user ON mfa_methods(user_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		pk INTEGER PRIMARY KEY,
		portunus_uuid TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password TEXT NOT NULL DEFAULT '',
		social_login_provider TEXT NOT NULL DEFAULT '',
		is_staff BOOLEAN NOT NULL DEFAULT 0,
		is_superuser BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mfa_methods (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(portunus_uuid) ON DELETE CASCADE,
		type TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 0,
		is_primary BOOLEAN NOT NULL DEFAULT 0,
		current_code TEXT NOT NULL DEFAULT '',
		code_generated_at INTEGER NOT NULL DEFAULT 0,
		UNIQUE (user_id, type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mfa_methods_user ON mfa_methods(user_id)`,
}
