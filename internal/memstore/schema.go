package memstore

import (
	"database/sql"
	"fmt"
)

// schemaDDL creates the documents table, its FTS5 shadow index, and the
// three triggers that keep the two in sync. Ported directly from
// original_source/src/ace_rm/memory/core.py's _init_db - the DDL text is
// unchanged except for being split into separate statements, since
// database/sql does not execute multi-statement strings as reliably as
// Python's sqlite3 module does.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT,
		entities TEXT,
		problem_class TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		content, entities, problem_class,
		content='documents', content_rowid='id'
	)`,
	`CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
		INSERT INTO documents_fts(rowid, content, entities, problem_class)
		VALUES (new.id, new.content, new.entities, new.problem_class);
	END`,
	`CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
		INSERT INTO documents_fts(documents_fts, rowid, content, entities, problem_class)
		VALUES('delete', old.id, old.content, old.entities, old.problem_class);
	END`,
	`CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
		INSERT INTO documents_fts(documents_fts, rowid, content, entities, problem_class)
		VALUES('delete', old.id, old.content, old.entities, old.problem_class);
		INSERT INTO documents_fts(rowid, content, entities, problem_class)
		VALUES (new.id, new.content, new.entities, new.problem_class);
	END`,
}

// initSchema runs the pragma sequence and schema DDL against db. Grounded
// on internal/store/local_core.go's NewLocalStore pragma sequence
// (SetMaxOpenConns(1), busy_timeout, journal_mode=WAL) plus the
// _init_db DDL above.
func initSchema(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		return fmt.Errorf("set synchronous: %w", err)
	}

	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}
