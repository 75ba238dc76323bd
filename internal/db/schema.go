package db

// Schema is the notes database layout. Every statement is idempotent.
const Schema = `
-- Notes: one row per note id. Ids are assigned once and never change.
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL CHECK(length(content) <= 1048576),
    is_pinned INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_pinned ON notes(is_pinned DESC, id);

-- Preferences: small key/value settings (appLanguage, speechLanguage, userId).
CREATE TABLE IF NOT EXISTS preferences (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Seeds: one-shot markers such as the introductory note.
CREATE TABLE IF NOT EXISTS seeds (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// Migrations contains ALTER TABLE statements for databases created by older
// builds. ADD COLUMN fails with "duplicate column name" on current databases;
// Migrate ignores that error.
const Migrations = `
ALTER TABLE notes ADD COLUMN is_pinned INTEGER NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS idx_notes_pinned ON notes(is_pinned DESC, id);
`
