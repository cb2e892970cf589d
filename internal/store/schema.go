package store

// SQL schema constants for all registry tables.

const schemaAdminCredentials = `
CREATE TABLE IF NOT EXISTS admin_credentials (
    provider TEXT PRIMARY KEY,
    secret TEXT NOT NULL
);
`

// AUTOINCREMENT keeps ids monotonic and never reused after deletion.
const schemaUserAPIKeys = `
CREATE TABLE IF NOT EXISTS user_api_keys (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    api_key TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL
);
`

// URL order per provider is insertion order (ORDER BY id); AUTOINCREMENT
// keeps that order stable across deletes.
const schemaBackends = `
CREATE TABLE IF NOT EXISTS backends (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    provider TEXT NOT NULL,
    url TEXT NOT NULL,
    UNIQUE(provider, url)
);
CREATE INDEX IF NOT EXISTS idx_backends_provider ON backends(provider);
`

const schemaModelMappings = `
CREATE TABLE IF NOT EXISTS model_mappings (
    model TEXT PRIMARY KEY,
    provider TEXT NOT NULL
);
`

const schemaRequests = `
CREATE TABLE IF NOT EXISTS requests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    model TEXT NOT NULL,
    provider TEXT NOT NULL DEFAULT '',
    backend_url TEXT NOT NULL DEFAULT '',
    status_code INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    prompt_tokens INTEGER NOT NULL DEFAULT 0,
    streamed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// allSchemas is the ordered list of schema DDL statements that form
// the initial (version-1) database layout.
var allSchemas = []string{
	schemaAdminCredentials,
	schemaUserAPIKeys,
	schemaBackends,
	schemaModelMappings,
	schemaRequests,
	schemaMigrations,
}
