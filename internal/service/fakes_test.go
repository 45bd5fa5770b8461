package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/codetrace/internal/domain/asset"
	"github.com/bigkaa/codetrace/internal/gemini"
	"github.com/bigkaa/codetrace/internal/storage/scratch"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRemote — изолированная замена Files API.
type fakeRemote struct {
	mu sync.Mutex

	// createState — состояние в ответе на submit
	createState string
	createErr   error
	// states — последовательные ответы Get (последний повторяется)
	states    []string
	getErr    error
	deleteErr error

	// getDelay — длительность каждого Get
	getDelay time.Duration
	// getStarts, getEnds — моменты начала и конца каждого Get
	getStarts []time.Time
	getEnds   []time.Time

	creates int
	gets    int
	deletes int
	// scratchSeen — временный файл существовал в момент submit
	scratchSeen bool
}

func (f *fakeRemote) Create(_ context.Context, filePath, displayName, mimeType string) (*asset.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates++
	if _, err := os.Stat(filePath); err == nil {
		f.scratchSeen = true
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &asset.Asset{
		Name:        "files/abc",
		DisplayName: displayName,
		MimeType:    mimeType,
		URI:         "https://example/v1beta/files/abc",
		State:       asset.ParseState(f.createState),
		RawState:    f.createState,
	}, nil
}

func (f *fakeRemote) Get(_ context.Context, name string) (*asset.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getStarts = append(f.getStarts, time.Now())
	if f.getDelay > 0 {
		time.Sleep(f.getDelay)
	}
	defer func() { f.getEnds = append(f.getEnds, time.Now()) }()

	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	state := "PROCESSING"
	if len(f.states) > 0 {
		state = f.states[min(f.gets-1, len(f.states)-1)]
	}
	return &asset.Asset{
		Name:     name,
		State:    asset.ParseState(state),
		RawState: state,
	}, nil
}

func (f *fakeRemote) Delete(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes++
	return f.deleteErr
}

func (f *fakeRemote) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes
}

// fakeGenerator — изолированная замена потоковой генерации.
type fakeGenerator struct {
	// body — SSE-тело ответа
	body string
	err  error

	calls int
	req   *gemini.GenerateContentRequest
	model string
}

func (g *fakeGenerator) StreamGenerateContent(_ context.Context, model string, req *gemini.GenerateContentRequest) (*gemini.Stream, error) {
	g.calls++
	g.req = req
	g.model = model
	if g.err != nil {
		return nil, g.err
	}
	return gemini.NewStream(io.NopCloser(strings.NewReader(g.body))), nil
}

// sseBody строит SSE-ответ из текстовых фрагментов.
func sseBody(t *testing.T, chunks ...string) string {
	t.Helper()

	var sb strings.Builder
	for _, c := range chunks {
		data, err := json.Marshal(gemini.GenerateContentResponse{
			Candidates: []gemini.Candidate{{Content: &gemini.Content{Parts: []gemini.Part{{Text: c}}}}},
		})
		if err != nil {
			t.Fatalf("Ошибка сериализации: %v", err)
		}
		sb.WriteString("data: ")
		sb.Write(data)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// sseError — SSE-событие с ошибкой сервиса.
const sseError = `data: {"error":{"code":500,"message":"internal","status":"INTERNAL"}}` + "\n\n"

// newScratch создаёт временное хранилище в директории теста.
func newScratch(t *testing.T) *scratch.Store {
	t.Helper()
	store, err := scratch.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания scratch: %v", err)
	}
	return store
}

// assertScratchEmpty проверяет, что временных файлов не осталось.
func assertScratchEmpty(t *testing.T, store *scratch.Store) {
	t.Helper()
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("Ошибка чтения директории: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("временные файлы не удалены: %d", len(entries))
	}
}

// activeLease создаёт lease для готового ассета.
func activeLease(remote RemoteFiles) *Lease {
	return newLease(&asset.Asset{
		Name:     "files/abc",
		MimeType: "video/mp4",
		URI:      "https://example/v1beta/files/abc",
		State:    asset.StateActive,
		RawState: "ACTIVE",
	}, remote, testLogger())
}

// buildZip создаёт zip-архив в памяти.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Ошибка создания записи: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Ошибка записи: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Ошибка закрытия архива: %v", err)
	}
	return buf.Bytes()
}

var errRemote = errors.New("сервис недоступен")
