// sqlite.go — журнал в базе SQLite (modernc.org/sqlite, без cgo).
// База создаётся только при первом Append; Clear удаляет файл базы.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS history (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             INTEGER NOT NULL,
	timestamp      TEXT    NOT NULL,
	zip_name       TEXT    NOT NULL,
	video_name     TEXT    NOT NULL,
	files_analyzed INTEGER NOT NULL,
	full_result    TEXT    NOT NULL
);
`

// SQLiteStore — журнал в SQLite. Порядок записей задаётся seq
// (больший seq — более новая запись).
type SQLiteStore struct {
	path   string
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore создаёт хранилище. Файл базы не создаётся до первого Append.
func NewSQLiteStore(path string, logger *slog.Logger, opts ...Option) *SQLiteStore {
	o := buildOptions(opts)
	return &SQLiteStore{
		path:   path,
		now:    o.now,
		logger: logger.With(slog.String("component", "history_sqlite")),
	}
}

// Path возвращает путь к файлу базы.
func (s *SQLiteStore) Path() string {
	return s.path
}

// open открывает базу на запись, создавая файл и схему при необходимости.
// Используется только мутаторами.
func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию базы: %w", err)
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("открытие базы: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("создание схемы: %w", err)
	}

	s.db = db
	return db, nil
}

// readOnlyDSN — URI базы в режиме только для чтения.
func readOnlyDSN(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path), RawQuery: "mode=ro&_pragma=busy_timeout(5000)"}
	return u.String()
}

// isMissingTable — база существует, но журнала в ней ещё нет.
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// Load возвращает журнал; отсутствующая или нечитаемая база даёт пустой журнал.
func (s *SQLiteStore) Load(ctx context.Context) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.load(ctx)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("База истории не читается, используется пустой журнал",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		return []Entry{}
	}
	return log
}

// load читает журнал, не изменяя файл базы: отсутствующий файл даёт
// os.ErrNotExist, файл без таблицы history читается как пустой журнал.
func (s *SQLiteStore) load(ctx context.Context) ([]Entry, error) {
	if s.db != nil {
		return queryEntries(ctx, s.db)
	}

	if _, err := os.Stat(s.path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", readOnlyDSN(s.path))
	if err != nil {
		return nil, fmt.Errorf("открытие базы: %w", err)
	}
	defer db.Close()

	log, err := queryEntries(ctx, db)
	if isMissingTable(err) {
		return []Entry{}, nil
	}
	return log, err
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEntries(ctx context.Context, q queryer) ([]Entry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, timestamp, zip_name, video_name, files_analyzed, full_result
		   FROM history ORDER BY seq DESC LIMIT ?`, MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("чтение журнала: %w", err)
	}
	defer rows.Close()

	log := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ZipName, &e.VideoName, &e.FilesAnalyzed, &e.FullResult); err != nil {
			return nil, fmt.Errorf("разбор записи журнала: %w", err)
		}
		log = append(log, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("чтение журнала: %w", err)
	}
	return log, nil
}

// Append добавляет запись и усекает журнал до MaxEntries в одной транзакции.
func (s *SQLiteStore) Append(ctx context.Context, n NewEntry) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.open(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}

	entry, total, err := s.appendTx(ctx, db, n)
	if err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}

	entriesGauge.Set(float64(total))
	s.logger.Info("Запись добавлена в историю",
		slog.Int("id", entry.ID),
		slog.Int("entries", total),
	)
	return entry, nil
}

func (s *SQLiteStore) appendTx(ctx context.Context, db *sql.DB, n NewEntry) (*Entry, int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // после Commit — no-op

	current, err := queryEntries(ctx, tx)
	if err != nil {
		return nil, 0, err
	}

	log, entry := prepend(current, n, s.now())

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (id, timestamp, zip_name, video_name, files_analyzed, full_result)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, entry.ZipName, entry.VideoName, entry.FilesAnalyzed, entry.FullResult,
	); err != nil {
		return nil, 0, fmt.Errorf("вставка записи: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE seq NOT IN (SELECT seq FROM history ORDER BY seq DESC LIMIT ?)`,
		MaxEntries,
	); err != nil {
		return nil, 0, fmt.Errorf("усечение журнала: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("фиксация транзакции: %w", err)
	}
	return &entry, len(log), nil
}

// Clear закрывает базу и удаляет её файл.
func (s *SQLiteStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeDB(); err != nil {
		s.logger.Warn("Ошибка закрытия базы истории", slog.String("error", err.Error()))
	}

	for _, p := range []string{s.path, s.path + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return &PersistenceError{Op: "clear", Path: p, Err: err}
		}
	}

	entriesGauge.Set(0)
	s.logger.Info("История очищена")
	return nil
}

// Count возвращает длину журнала.
func (s *SQLiteStore) Count(ctx context.Context) int {
	return len(s.Load(ctx))
}

// Get возвращает запись по id.
func (s *SQLiteStore) Get(ctx context.Context, id int) (*Entry, error) {
	return find(s.Load(ctx), id)
}

// Close закрывает соединение с базой.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeDB()
}

func (s *SQLiteStore) closeDB() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
