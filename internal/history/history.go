// Пакет history — журнал выполненных анализов: ограниченный (50 записей),
// упорядоченный от новых к старым. Единственное долговременное состояние.
//
// Бэкенды: FileStore (JSON-файл, по умолчанию) и SQLiteStore.
// Оба сериализуют собственные мутации мьютексом; межпроцессной
// блокировки нет (предполагается один пишущий сеанс).
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MaxEntries — предельная длина журнала.
const MaxEntries = 50

// TimestampLayout — формат времени записи (локальное время, микросекунды).
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Бэкенды хранения (CT_HISTORY_BACKEND).
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// ErrNotFound — запись с указанным id отсутствует.
var ErrNotFound = errors.New("запись истории не найдена")

// entriesGauge — текущая длина журнала.
var entriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ct_history_entries",
	Help: "Количество записей в журнале анализов",
})

// Entry — запись журнала. Не изменяется после создания.
type Entry struct {
	// ID — порядковый номер: длина журнала до вставки + 1.
	// После вытеснения старых записей id могут повторяться.
	ID            int    `json:"id"`
	Timestamp     string `json:"timestamp"`
	ZipName       string `json:"zip_name"`
	VideoName     string `json:"video_name"`
	FilesAnalyzed int    `json:"files_analyzed"`
	FullResult    string `json:"full_result"`
}

// NewEntry — данные завершённого анализа для добавления в журнал.
type NewEntry struct {
	ZipName       string
	VideoName     string
	FilesAnalyzed int
	FullResult    string
}

// Store — хранилище журнала анализов.
type Store interface {
	// Load возвращает журнал (от новых к старым). Отсутствующее или
	// повреждённое хранилище даёт пустой журнал. Хранилище не создаётся.
	Load(ctx context.Context) []Entry
	// Append добавляет запись в начало журнала и усекает его до MaxEntries
	Append(ctx context.Context, entry NewEntry) (*Entry, error)
	// Clear удаляет хранилище целиком
	Clear(ctx context.Context) error
	// Count возвращает длину журнала
	Count(ctx context.Context) int
	// Get возвращает первую (самую новую) запись с указанным id
	Get(ctx context.Context, id int) (*Entry, error)
	// Close освобождает ресурсы хранилища
	Close() error
}

// Option — параметр хранилища.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock задаёт источник текущего времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open создаёт хранилище указанного бэкенда.
func Open(backend, filePath, dbPath string, logger *slog.Logger, opts ...Option) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewFileStore(filePath, logger, opts...), nil
	case BackendSQLite:
		return NewSQLiteStore(dbPath, logger, opts...), nil
	default:
		return nil, fmt.Errorf("неизвестный бэкенд истории: %q (допустимо: json, sqlite)", backend)
	}
}

// PersistenceError — ошибка записи журнала (ошибки чтения не возвращаются).
type PersistenceError struct {
	// Op — операция (append, clear)
	Op string
	// Path — путь к хранилищу
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("PERSISTENCE_ERROR: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// prepend строит запись и возвращает новый журнал: запись в начале,
// длина не больше MaxEntries. id вычисляется до усечения.
func prepend(log []Entry, n NewEntry, now time.Time) ([]Entry, Entry) {
	entry := Entry{
		ID:            len(log) + 1,
		Timestamp:     now.Format(TimestampLayout),
		ZipName:       n.ZipName,
		VideoName:     n.VideoName,
		FilesAnalyzed: n.FilesAnalyzed,
		FullResult:    n.FullResult,
	}

	out := make([]Entry, 0, min(len(log)+1, MaxEntries))
	out = append(out, entry)
	for _, e := range log {
		if len(out) == MaxEntries {
			break
		}
		out = append(out, e)
	}
	return out, entry
}

// find возвращает первую запись с указанным id.
func find(log []Entry, id int) (*Entry, error) {
	for i := range log {
		if log[i].ID == id {
			e := log[i]
			return &e, nil
		}
	}
	return nil, ErrNotFound
}
