package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/seblog/micropub/internal/model"
	"github.com/seblog/micropub/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS entries (
	slug TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	fields TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at DESC);

CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL,
	name TEXT NOT NULL,
	content_type TEXT,
	data BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(slug) REFERENCES entries(slug)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_files_unique ON files(slug, name);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) CreateEntry(ctx context.Context, entry *model.Entry) error {
	fields, err := json.Marshal(entry.Fields)
	if err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO entries (slug, kind, fields, created_at)
VALUES (?, ?, ?, ?)
`, entry.Slug, entry.Kind, string(fields), entry.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateSlug
		}
		return err
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, slug string) (model.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT slug, kind, fields, created_at
FROM entries
WHERE slug = ?
LIMIT 1
`, slug)

	var entry model.Entry
	var fields string
	var createdAt int64
	if err := row.Scan(&entry.Slug, &entry.Kind, &fields, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return model.Entry{}, store.ErrNotFound
		}
		return model.Entry{}, err
	}
	if err := json.Unmarshal([]byte(fields), &entry.Fields); err != nil {
		return model.Entry{}, err
	}
	entry.CreatedAt = time.Unix(createdAt, 0)
	return entry, nil
}

// UpdateEntryField rewrites the fields blob inside one transaction so
// concurrent updates to different fields cannot lose each other.
func (s *Store) UpdateEntryField(ctx context.Context, slug, field, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	row := tx.QueryRowContext(ctx, `
SELECT fields FROM entries WHERE slug = ? LIMIT 1
`, slug)
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		return err
	}

	fields := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return err
	}
	fields[field] = value
	encoded, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE entries SET fields = ? WHERE slug = ?
`, string(encoded), slug); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SaveFile(ctx context.Context, file *model.File) error {
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}
	name := file.Name
	for attempt := 0; ; attempt++ {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO files (slug, name, content_type, data, created_at)
VALUES (?, ?, ?, ?, ?)
`, file.Slug, name, nullIfEmpty(file.ContentType), file.Data, file.CreatedAt.Unix())
		if err == nil {
			file.Name = name
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
		if attempt >= 100 {
			return fmt.Errorf("no free name for %s/%s", file.Slug, file.Name)
		}
		name = numberedName(file.Name, attempt+1)
	}
}

func (s *Store) GetFile(ctx context.Context, slug, name string) (model.File, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT slug, name, content_type, data, created_at
FROM files
WHERE slug = ? AND name = ?
LIMIT 1
`, slug, name)

	var file model.File
	var contentType sql.NullString
	var createdAt int64
	if err := row.Scan(&file.Slug, &file.Name, &contentType, &file.Data, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return model.File{}, store.ErrNotFound
		}
		return model.File{}, err
	}
	file.ContentType = contentType.String
	file.CreatedAt = time.Unix(createdAt, 0)
	return file, nil
}

// numberedName turns photo.jpg into photo-1.jpg, photo-2.jpg, ...
func numberedName(name string, n int) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s-%d%s", base, n, ext)
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
