package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"intelterm/internal/storage"
)

// Store реализует storage.Store поверх SQLite.
type Store struct {
	db *sql.DB
}

// Open инициализирует соединение и выполняет миграции.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS command_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			source TEXT NOT NULL,
			subject TEXT,
			command TEXT NOT NULL,
			args TEXT,
			success INTEGER NOT NULL,
			result_type TEXT,
			request_id TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_ts ON command_history(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_history_subject_ts ON command_history(subject, ts);`,
		`CREATE TABLE IF NOT EXISTS digests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			command TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata BLOB
		);`,
		`CREATE INDEX IF NOT EXISTS idx_digests_command_ts ON digests(command, ts);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveCommand сохраняет запись истории.
func (s *Store) SaveCommand(ctx context.Context, rec storage.CommandRecord) error {
	ts := rec.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO command_history(source, subject, command, args, success, result_type, request_id, ts) VALUES(?,?,?,?,?,?,?,?)`,
		rec.Source, rec.Subject, rec.Command, string(args), rec.Success, rec.Type, rec.RequestID, ts)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// SaveDigest сохраняет результат плановой команды.
func (s *Store) SaveDigest(ctx context.Context, rec storage.DigestRecord) error {
	ts := rec.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO digests(command, message, metadata, ts) VALUES(?,?,?,?)`, rec.Command, rec.Message, rec.Metadata, ts)
	if err != nil {
		return fmt.Errorf("insert digest: %w", err)
	}
	return nil
}

// LatestDigest возвращает последний дайджест команды.
func (s *Store) LatestDigest(ctx context.Context, command string) (storage.DigestRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT command, message, metadata, ts FROM digests WHERE command = ? ORDER BY ts DESC, id DESC LIMIT 1`, command)
	var rec storage.DigestRecord
	var ts string
	var meta []byte
	if err := row.Scan(&rec.Command, &rec.Message, &meta, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.DigestRecord{}, fmt.Errorf("digest %s: %w", command, storage.ErrNotFound)
		}
		return storage.DigestRecord{}, fmt.Errorf("query latest digest: %w", err)
	}
	parsedTS, err := parseSQLiteTS(ts)
	if err != nil {
		return storage.DigestRecord{}, fmt.Errorf("parse digest timestamp: %w", err)
	}
	rec.TS = parsedTS
	if len(meta) > 0 {
		rec.Metadata = meta
	}
	return rec, nil
}

// QueryHistory возвращает историю команд по фильтрам, новые первыми.
func (s *Store) QueryHistory(ctx context.Context, q storage.HistoryQuery) ([]storage.CommandRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	from := q.From
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	to := q.To
	if to.IsZero() {
		to = time.Now().UTC()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT source, subject, command, args, success, result_type, request_id, ts
FROM command_history
WHERE ts >= ? AND ts <= ? AND (? = '' OR subject = ?)
ORDER BY ts DESC, id DESC
LIMIT ?`, from, to, q.Subject, q.Subject, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]storage.CommandRecord, 0, limit)
	for rows.Next() {
		var rec storage.CommandRecord
		var args, ts string
		if err := rows.Scan(&rec.Source, &rec.Subject, &rec.Command, &args, &rec.Success, &rec.Type, &rec.RequestID, &ts); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if args != "" {
			if err := json.Unmarshal([]byte(args), &rec.Args); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
		}
		parsedTS, err := parseSQLiteTS(ts)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp: %w", err)
		}
		rec.TS = parsedTS
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

func parseSQLiteTS(v string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported sqlite time format: %q", v)
}

// Write реализует storage.HistoryWriter.
func (s *Store) Write(ctx context.Context, rec storage.CommandRecord) error {
	return s.SaveCommand(ctx, rec)
}

// Close закрывает соединение.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarshalMetadata сериализует metadata результата для дайджеста.
func MarshalMetadata(data map[string]any) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return buf, nil
}
