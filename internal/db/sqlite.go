package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
    collection TEXT NOT NULL,
    id INTEGER NOT NULL,
    body TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS sequences (
    collection TEXT PRIMARY KEY,
    last_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    key TEXT NOT NULL,
    body TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, key)
);
`

var fieldName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// SQLiteBackend stores every collection in a single SQLite file.
type SQLiteBackend struct {
	db     *sql.DB
	path   string
	logger *log.Entry
}

// OpenSQLite opens (creating if needed) the database at path and prepares
// expression indexes for the given collections.
func OpenSQLite(path string, collections []Collection) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connStr := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers the same way the engine would.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	b := &SQLiteBackend{db: db, path: path, logger: log.WithField("component", "sqlite")}
	if err := b.initSchema(collections); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	b.logger.WithField("path", path).Info("SQLite store initialized")
	return b, nil
}

func (b *SQLiteBackend) initSchema(collections []Collection) error {
	if _, err := b.db.Exec(sqliteSchema); err != nil {
		return err
	}
	fields := map[string]bool{}
	for _, c := range collections {
		for _, idx := range c.Indexes {
			fields[idx] = true
		}
	}
	for field := range fields {
		if !fieldName.MatchString(field) {
			return fmt.Errorf("invalid index field %q", field)
		}
		stmt := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_records_%s ON records(collection, json_extract(body, '$.%s'))",
			field, field)
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating index on %s: %w", field, err)
		}
	}
	return nil
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string {
	return b.path
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// transaction executes fn within a transaction, rolling back on error.
func (b *SQLiteBackend) transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nextID(ctx context.Context, tx *sql.Tx, collection string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO sequences (collection, last_id) VALUES (?, 1)
		ON CONFLICT(collection) DO UPDATE SET last_id = last_id + 1
		RETURNING last_id`, collection).Scan(&id)
	return id, err
}

func bumpSequence(ctx context.Context, tx *sql.Tx, collection string, id int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sequences (collection, last_id) VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET last_id = MAX(last_id, excluded.last_id)`,
		collection, id)
	return err
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// Insert implements Backend.
func (b *SQLiteBackend) Insert(ctx context.Context, collection string, id int64, body []byte) (int64, error) {
	err := b.transaction(ctx, func(tx *sql.Tx) error {
		var err error
		if id == 0 {
			if id, err = nextID(ctx, tx, collection); err != nil {
				return fmt.Errorf("allocating id: %w", err)
			}
		} else if err = bumpSequence(ctx, tx, collection, id); err != nil {
			return fmt.Errorf("advancing sequence: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO records (collection, id, body, created_at) VALUES (?, ?, ?, ?)`,
			collection, id, string(body), now())
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get implements Backend.
func (b *SQLiteBackend) Get(ctx context.Context, collection string, id int64) ([]byte, error) {
	var body string
	err := b.db.QueryRowContext(ctx,
		`SELECT body FROM records WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

// List implements Backend.
func (b *SQLiteBackend) List(ctx context.Context, collection, orderBy string) ([]Row, error) {
	query := `SELECT id, body FROM records WHERE collection = ? ORDER BY rowid`
	if orderBy != "" {
		if !fieldName.MatchString(orderBy) {
			return nil, fmt.Errorf("invalid order field %q", orderBy)
		}
		query = fmt.Sprintf(
			`SELECT id, body FROM records WHERE collection = ? ORDER BY json_extract(body, '$.%s') DESC, id DESC`,
			orderBy)
	}

	rows, err := b.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var body string
		if err := rows.Scan(&r.ID, &body); err != nil {
			return nil, err
		}
		r.Body = []byte(body)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Put implements Backend.
func (b *SQLiteBackend) Put(ctx context.Context, collection string, id int64, body []byte) (bool, error) {
	var existed bool
	err := b.transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE records SET body = ? WHERE collection = ? AND id = ?`, string(body), collection, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		existed = n > 0
		return nil
	})
	return existed, err
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, collection string, id int64) (bool, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteWhere implements Backend.
func (b *SQLiteBackend) DeleteWhere(ctx context.Context, collection, field string, value int64) (int64, error) {
	if !fieldName.MatchString(field) {
		return 0, fmt.Errorf("invalid field %q", field)
	}
	stmt := fmt.Sprintf(`DELETE FROM records WHERE collection = ? AND json_extract(body, '$.%s') = ?`, field)
	res, err := b.db.ExecContext(ctx, stmt, collection, value)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Clear implements Backend.
func (b *SQLiteBackend) Clear(ctx context.Context, collection string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection)
	return err
}

// Replace implements Backend.
func (b *SQLiteBackend) Replace(ctx context.Context, collection string, rows []Row) error {
	return b.transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO records (collection, id, body, created_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		var maxID int64
		ts := now()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, collection, r.ID, string(r.Body), ts); err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicateID
				}
				return err
			}
			maxID = max(maxID, r.ID)
		}
		if maxID > 0 {
			return bumpSequence(ctx, tx, collection, maxID)
		}
		return nil
	})
}

// GetDocument implements Backend.
func (b *SQLiteBackend) GetDocument(ctx context.Context, collection, key string) ([]byte, error) {
	var body string
	err := b.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND key = ?`, collection, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

// PutDocument implements Backend.
func (b *SQLiteBackend) PutDocument(ctx context.Context, collection, key string, body []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		collection, key, string(body), now())
	return err
}

// ListDocuments implements Backend.
func (b *SQLiteBackend) ListDocuments(ctx context.Context, collection string) ([]Document, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key, body FROM documents WHERE collection = ? ORDER BY key`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var body string
		if err := rows.Scan(&d.Key, &body); err != nil {
			return nil, err
		}
		d.Body = []byte(body)
		out = append(out, d)
	}
	return out, rows.Err()
}
