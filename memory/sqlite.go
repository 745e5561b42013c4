package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/catcatai/hsp/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS experiences (
	id        TEXT PRIMARY KEY,
	data_type TEXT NOT NULL,
	raw_data  TEXT NOT NULL,
	metadata  TEXT NOT NULL,
	stored_at TEXT NOT NULL,
	version   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_experiences_data_type ON experiences(data_type);
`

// SQLiteStore persists records in a single-file SQLite database.
// Metadata is stored as a JSON column; equality filters are applied
// after decode rather than with JSON path expressions to keep the
// query surface identical to the in-memory backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "SQLiteStore", "NewSQLiteStore", "open database")
	}
	// modernc sqlite serializes access through a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.WrapFatal(err, "SQLiteStore", "NewSQLiteStore", "apply schema")
	}
	return &SQLiteStore{db: db}, nil
}

// StoreExperience inserts a new record and returns its id.
func (s *SQLiteStore) StoreExperience(ctx context.Context, rawData, dataType string, metadata map[string]any) (string, error) {
	if dataType == "" {
		return "", errors.WrapInvalid(errors.New("data type is required"), "SQLiteStore", "StoreExperience", "validate")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", errors.WrapFatal(err, "SQLiteStore", "StoreExperience", "marshal metadata")
	}

	id := "mem_" + uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiences (id, data_type, raw_data, metadata, stored_at, version) VALUES (?, ?, ?, ?, ?, 1)`,
		id, dataType, rawData, string(meta), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", errors.WrapTransient(err, "SQLiteStore", "StoreExperience", "insert")
	}
	return id, nil
}

// QueryCoreMemory returns records matching the query, oldest first.
func (s *SQLiteStore) QueryCoreMemory(ctx context.Context, q Query) ([]Record, error) {
	var (
		clauses []string
		args    []any
	)
	if q.DataType != "" {
		clauses = append(clauses, "data_type = ?")
		args = append(args, q.DataType)
	}

	query := `SELECT id, data_type, raw_data, metadata, stored_at, version FROM experiences`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY stored_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapTransient(err, "SQLiteStore", "QueryCoreMemory", "select")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if !matches(&rec, q) {
			continue
		}
		out = append(out, rec)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "SQLiteStore", "QueryCoreMemory", "iterate")
	}
	return out, nil
}

// IncrementMetadataField adds one to an integer metadata field inside a
// transaction so the read-modify-write is atomic.
func (s *SQLiteStore) IncrementMetadataField(ctx context.Context, id, field string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "IncrementMetadataField", "begin")
	}
	defer tx.Rollback()

	var (
		meta    string
		version int
	)
	row := tx.QueryRowContext(ctx, `SELECT metadata, version FROM experiences WHERE id = ?`, id)
	if err := row.Scan(&meta, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.WrapInvalid(errors.ErrKeyNotFound, "SQLiteStore", "IncrementMetadataField", id)
		}
		return errors.WrapTransient(err, "SQLiteStore", "IncrementMetadataField", "read")
	}

	metadata := map[string]any{}
	if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
		return errors.WrapFatal(err, "SQLiteStore", "IncrementMetadataField", "decode metadata")
	}
	if n, ok := asInt(metadata[field]); ok {
		metadata[field] = n + 1
	} else {
		metadata[field] = 1
	}
	next, err := json.Marshal(metadata)
	if err != nil {
		return errors.WrapFatal(err, "SQLiteStore", "IncrementMetadataField", "encode metadata")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE experiences SET metadata = ?, version = ? WHERE id = ?`,
		string(next), version+1, id)
	if err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "IncrementMetadataField", "update")
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec    Record
		meta   string
		stored string
	)
	if err := row.Scan(&rec.ID, &rec.DataType, &rec.RawData, &meta, &stored, &rec.Version); err != nil {
		return Record{}, errors.WrapTransient(err, "SQLiteStore", "scanRecord", "scan")
	}
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return Record{}, errors.WrapFatal(err, "SQLiteStore", "scanRecord", "decode metadata")
	}
	ts, err := time.Parse(time.RFC3339Nano, stored)
	if err != nil {
		return Record{}, errors.WrapFatal(err, "SQLiteStore", "scanRecord", "parse timestamp")
	}
	rec.StoredAt = ts
	return rec, nil
}
