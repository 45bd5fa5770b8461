// Пакет ingest — извлечение исходного кода из zip-архива в единый
// текстовый корпус для анализа.
//
// Фильтрация выполняется для каждой записи архива (кроме директорий)
// в порядке листинга:
//  1. игнорируемые директории (любой сегмент пути)
//  2. игнорируемые имена файлов
//  3. расширение вне списка разрешённых
//  4. содержимое не является валидным UTF-8 (бинарный файл)
//
// Пакет не имеет глобального состояния: счётчики возвращаются в Result.
package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"
)

// Separator — строка-разделитель блока файла в корпусе.
var Separator = strings.Repeat("=", 60)

// SkipReason — причина пропуска записи архива.
type SkipReason string

const (
	// SkipIgnoredDir — запись лежит внутри игнорируемой директории
	SkipIgnoredDir SkipReason = "ignored_dir"
	// SkipIgnoredFile — имя файла в списке игнорируемых
	SkipIgnoredFile SkipReason = "ignored_file"
	// SkipExtension — расширение не входит в разрешённые
	SkipExtension SkipReason = "extension"
	// SkipBinary — содержимое не декодируется как UTF-8
	SkipBinary SkipReason = "binary"
	// SkipUnreadable — запись не удалось открыть (неподдерживаемое сжатие)
	SkipUnreadable SkipReason = "unreadable"
)

// Result — результат обработки архива. Не изменяется после создания.
type Result struct {
	// Corpus — блоки файлов, объединённые пустой строкой.
	// Пустая строка означает, что ни один файл не прошёл фильтры.
	Corpus string
	// Files — относительные пути файлов, попавших в корпус (порядок листинга)
	Files []string
	// FilesProcessed — количество файлов в корпусе
	FilesProcessed int
	// FilesSkipped — количество пропущенных файлов
	FilesSkipped int
	// Skipped — разбивка пропусков по причинам
	Skipped map[SkipReason]int
}

// Empty возвращает true, если корпус пуст (нет подходящих файлов).
func (r *Result) Empty() bool {
	return r.Corpus == ""
}

// Total возвращает количество обработанных записей (без директорий).
func (r *Result) Total() int {
	return r.FilesProcessed + r.FilesSkipped
}

// Error — архив повреждён или не читается как zip (IngestionError).
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ошибка чтения архива: %s: %v", e.Message, e.Err)
	}
	return "ошибка чтения архива: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Ingest разбирает zip-архив и собирает корпус из файлов, прошедших фильтры.
// allowed — набор разрешённых расширений (см. NewExtensionSet).
func Ingest(archive []byte, allowed ExtensionSet, rules Rules) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	// ErrInsecurePath (GODEBUG=zipinsecurepath=0) возвращается вместе с валидным reader:
	// пути используются только как текстовые метки, на диск ничего не распаковывается.
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return nil, &Error{Message: "некорректный zip-контейнер", Err: err}
	}

	res := &Result{Skipped: make(map[SkipReason]int)}
	var blocks []string

	skip := func(reason SkipReason) {
		res.FilesSkipped++
		res.Skipped[reason]++
	}

	for _, f := range zr.File {
		// Директории определяются по метаданным записи
		if f.FileInfo().IsDir() {
			continue
		}

		filePath := f.Name
		fileName := path.Base(filePath)

		if rules.inIgnoredDir(filePath) {
			skip(SkipIgnoredDir)
			continue
		}

		if rules.isIgnoredFile(fileName) {
			skip(SkipIgnoredFile)
			continue
		}

		if !allowed.Contains(splitExt(fileName)) {
			skip(SkipExtension)
			continue
		}

		data, err := readEntry(f)
		if err != nil {
			if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) {
				return nil, &Error{Message: fmt.Sprintf("запись %s повреждена", filePath), Err: err}
			}
			skip(SkipUnreadable)
			continue
		}

		if !utf8.Valid(data) {
			skip(SkipBinary)
			continue
		}

		blocks = append(blocks, formatBlock(filePath, string(data)))
		res.Files = append(res.Files, filePath)
		res.FilesProcessed++
	}

	res.Corpus = strings.Join(blocks, "\n\n")
	return res, nil
}

// FormatBlock возвращает блок файла в формате корпуса.
func FormatBlock(filePath, content string) string {
	return formatBlock(filePath, content)
}

func formatBlock(filePath, content string) string {
	var sb strings.Builder
	sb.Grow(2*len(Separator) + len(filePath) + len(content) + 16)
	sb.WriteString(Separator)
	sb.WriteString("\nFILE: ")
	sb.WriteString(filePath)
	sb.WriteByte('\n')
	sb.WriteString(Separator)
	sb.WriteByte('\n')
	sb.WriteString(content)
	return sb.String()
}

// readEntry читает содержимое записи архива целиком.
func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// splitExt возвращает расширение имени файла в нижнем регистре (с точкой).
// Ведущие точки имени не начинают расширение: ".babelrc" → "".
func splitExt(name string) string {
	trimmed := strings.TrimLeft(name, ".")
	idx := strings.LastIndexByte(trimmed, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(trimmed[idx:])
}
