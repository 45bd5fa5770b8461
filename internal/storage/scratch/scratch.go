// Пакет scratch — локальное временное хранилище загружаемых видеозаписей.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету и удаление.
// Каждый файл принадлежит одному вызову загрузки и не разделяется.
package scratch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// defaultExt — расширение временного файла, если у исходного его нет.
const defaultExt = ".mp4"

// Store — директория временных файлов (CT_SCRATCH_DIR).
type Store struct {
	dir string
}

// File — сохранённый временный файл.
type File struct {
	// Path — абсолютный путь на диске
	Path string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого
	Checksum string
}

// New создаёт Store. Директория создаётся, если не существует.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "codetrace")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию временных файлов %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir возвращает путь директории.
func (s *Store) Dir() string {
	return s.dir
}

// Save записывает данные из reader во временный файл.
// Имя файла: {uuid}{ext}, ext берётся из originalName (по умолчанию .mp4).
//
// Паттерн: запись + SHA-256 → fsync. При ошибке файл удаляется.
func (s *Store) Save(reader io.Reader, originalName string) (*File, error) {
	path := filepath.Join(s.dir, uuid.New().String()+extOf(originalName))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	return &File{
		Path:     path,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Remove удаляет временный файл. Отсутствующий файл ошибкой не считается.
func (s *Store) Remove(f *File) error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления временного файла %s: %w", f.Path, err)
	}
	return nil
}

// extOf возвращает расширение имени файла (в нижнем регистре) или .mp4.
func extOf(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if ext == "" || ext == "." {
		return defaultExt
	}
	return ext
}
