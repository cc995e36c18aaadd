package db

// Schema is the DDL for the autodraft ledger.
const Schema = `
CREATE TABLE IF NOT EXISTS cycles (
    id          TEXT PRIMARY KEY,
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL DEFAULT '',
    listed      INTEGER NOT NULL DEFAULT 0,
    drafted     INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS processed (
    cycle_id     TEXT NOT NULL,
    message_id   TEXT NOT NULL,
    subject      TEXT NOT NULL DEFAULT '',
    draft_id     TEXT NOT NULL DEFAULT '',
    outcome      TEXT NOT NULL,
    marked_read  INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    processed_at TEXT NOT NULL,
    PRIMARY KEY (cycle_id, message_id),
    FOREIGN KEY (cycle_id) REFERENCES cycles(id)
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_processed_message ON processed(message_id);
CREATE INDEX IF NOT EXISTS idx_processed_at ON processed(processed_at DESC);
`
