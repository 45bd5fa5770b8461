// filestore.go — журнал в JSON-файле.
// Запись атомарна: temp → fsync → rename.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore — журнал в JSON-файле (массив записей, отступ 2 пробела).
type FileStore struct {
	path   string
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
}

// NewFileStore создаёт хранилище. Файл не создаётся до первого Append.
func NewFileStore(path string, logger *slog.Logger, opts ...Option) *FileStore {
	o := buildOptions(opts)
	return &FileStore{
		path:   path,
		now:    o.now,
		logger: logger.With(slog.String("component", "history_file")),
	}
}

// Path возвращает путь к файлу журнала.
func (s *FileStore) Path() string {
	return s.path
}

// Load возвращает журнал; отсутствующий или повреждённый файл даёт пустой журнал.
func (s *FileStore) Load(_ context.Context) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Append добавляет запись и сохраняет журнал.
func (s *FileStore) Append(_ context.Context, n NewEntry) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, entry := prepend(s.load(), n, s.now())
	if err := s.write(log); err != nil {
		return nil, &PersistenceError{Op: "append", Path: s.path, Err: err}
	}

	entriesGauge.Set(float64(len(log)))
	s.logger.Info("Запись добавлена в историю",
		slog.Int("id", entry.ID),
		slog.Int("entries", len(log)),
	)
	return &entry, nil
}

// Clear удаляет файл журнала.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return &PersistenceError{Op: "clear", Path: s.path, Err: err}
	}

	entriesGauge.Set(0)
	s.logger.Info("История очищена")
	return nil
}

// Count возвращает длину журнала.
func (s *FileStore) Count(ctx context.Context) int {
	return len(s.Load(ctx))
}

// Get возвращает запись по id.
func (s *FileStore) Get(ctx context.Context, id int) (*Entry, error) {
	return find(s.Load(ctx), id)
}

// Close ничего не делает: файл не держится открытым.
func (s *FileStore) Close() error {
	return nil
}

// load читает файл. Ошибки чтения и разбора поглощаются (пустой журнал).
func (s *FileStore) load() []Entry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Файл истории не читается, используется пустой журнал",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		return []Entry{}
	}

	var log []Entry
	if err := json.Unmarshal(data, &log); err != nil {
		s.logger.Warn("Файл истории повреждён, используется пустой журнал",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return []Entry{}
	}
	if log == nil {
		log = []Entry{}
	}
	return log
}

// write атомарно записывает журнал.
// Не-ASCII символы и <>& сохраняются как есть.
func (s *FileStore) write(log []Entry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(log); err != nil {
		return fmt.Errorf("ошибка сериализации журнала: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}
