package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "atoms: nodes with embedding, attention and truth value",
		SQL: `
CREATE TABLE atoms (
    id           TEXT PRIMARY KEY,
    external_id  TEXT NOT NULL UNIQUE,
    embedding    BLOB,
    dimensions   INTEGER NOT NULL DEFAULT 0,
    attention    REAL NOT NULL DEFAULT 0 CHECK (attention >= 0),

    -- Truth value
    strength     REAL NOT NULL DEFAULT 1.0,
    confidence   REAL NOT NULL DEFAULT 0.0,
    count        REAL NOT NULL DEFAULT 0.0,

    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE INDEX idx_atoms_attention ON atoms(attention DESC);
`,
	},
	{
		Version:     2,
		Description: "links: relations between atoms by external id",
		SQL: `
CREATE TABLE links (
    id           TEXT PRIMARY KEY,
    external_id  TEXT NOT NULL UNIQUE,
    attention    REAL NOT NULL DEFAULT 0,
    strength     REAL NOT NULL DEFAULT 1.0,
    confidence   REAL NOT NULL DEFAULT 0.0,
    count        REAL NOT NULL DEFAULT 0.0,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE TABLE link_endpoints (
    link_id      TEXT NOT NULL,
    role         TEXT NOT NULL CHECK (role IN ('source', 'target')),
    position     INTEGER NOT NULL,
    external_id  TEXT NOT NULL,
    PRIMARY KEY (link_id, role, position),
    FOREIGN KEY (link_id) REFERENCES links(id) ON DELETE CASCADE
);

CREATE INDEX idx_endpoints_external ON link_endpoints(external_id);
`,
	},
	{
		Version:     3,
		Description: "cycles: allocation cycle history",
		SQL: `
CREATE TABLE cycles (
    id                   TEXT PRIMARY KEY,
    mechanism            TEXT NOT NULL CHECK (mechanism IN ('softmax', 'ecan', 'hybrid')),
    total_attention      REAL NOT NULL,
    average_attention    REAL NOT NULL,
    attention_entropy    REAL NOT NULL,
    resource_utilization REAL NOT NULL,
    gradient_norm        REAL NOT NULL,
    convergence_rate     REAL NOT NULL,
    node_count           INTEGER NOT NULL,
    link_count           INTEGER NOT NULL,
    duration_ms          INTEGER NOT NULL,
    created_at           INTEGER NOT NULL
);

CREATE INDEX idx_cycles_created_at ON cycles(created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
