// rules.go — статическая конфигурация фильтров: игнорируемые директории,
// игнорируемые файлы и наборы расширений.
package ingest

import (
	"fmt"
	"os"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

// DefaultExtensions — расширения, выбранные по умолчанию.
var DefaultExtensions = []string{".py", ".js", ".tsx", ".css"}

// AllExtensions — все расширения, доступные для выбора.
var AllExtensions = []string{
	".py", ".js", ".jsx", ".ts", ".tsx",
	".css", ".scss", ".html", ".vue", ".svelte",
	".json", ".md",
}

var defaultIgnoredDirs = []string{
	"__MACOSX", ".git", "node_modules", "__pycache__",
	".vscode", ".idea", "dist", "build", ".next", ".nuxt",
	"coverage", ".cache", "venv", "env",
}

var defaultIgnoredFiles = []string{
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml",
	".DS_Store", "Thumbs.db", ".gitignore", ".npmrc",
	".env", ".env.local", ".env.production",
}

// Rules — наборы игнорируемых директорий и файлов.
// Задаются при старте и не меняются во время работы.
type Rules struct {
	ignoredDirs  map[string]struct{}
	ignoredFiles map[string]struct{}
}

// NewRules создаёт правила из списков имён директорий и файлов.
func NewRules(ignoredDirs, ignoredFiles []string) Rules {
	return Rules{
		ignoredDirs:  toSet(ignoredDirs),
		ignoredFiles: toSet(ignoredFiles),
	}
}

// DefaultRules возвращает встроенные правила фильтрации.
func DefaultRules() Rules {
	return NewRules(defaultIgnoredDirs, defaultIgnoredFiles)
}

// IgnoredDirs возвращает отсортированный список игнорируемых директорий.
func (r Rules) IgnoredDirs() []string {
	return sortedKeys(r.ignoredDirs)
}

// IgnoredFiles возвращает отсортированный список игнорируемых файлов.
func (r Rules) IgnoredFiles() []string {
	return sortedKeys(r.ignoredFiles)
}

// inIgnoredDir проверяет, содержит ли путь игнорируемый сегмент.
func (r Rules) inIgnoredDir(filePath string) bool {
	for _, part := range strings.Split(filePath, "/") {
		if _, ok := r.ignoredDirs[part]; ok {
			return true
		}
	}
	return false
}

func (r Rules) isIgnoredFile(name string) bool {
	_, ok := r.ignoredFiles[name]
	return ok
}

// rulesFile — формат YAML-файла правил (CT_RULES_FILE).
type rulesFile struct {
	IgnoredDirs  []string `yaml:"ignored_dirs"`
	IgnoredFiles []string `yaml:"ignored_files"`
}

// LoadRulesFile читает правила из YAML-файла.
// Отсутствующая секция заменяется встроенным списком.
func LoadRulesFile(filePath string) (Rules, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Rules{}, fmt.Errorf("чтение файла правил %s: %w", filePath, err)
	}

	var rf rulesFile
	if err := yaml.UnmarshalStrict(data, &rf); err != nil {
		return Rules{}, fmt.Errorf("разбор файла правил %s: %w", filePath, err)
	}

	if rf.IgnoredDirs == nil {
		rf.IgnoredDirs = defaultIgnoredDirs
	}
	if rf.IgnoredFiles == nil {
		rf.IgnoredFiles = defaultIgnoredFiles
	}

	return NewRules(rf.IgnoredDirs, rf.IgnoredFiles), nil
}

// ExtensionSet — набор разрешённых расширений (нижний регистр, с точкой).
type ExtensionSet map[string]struct{}

// NewExtensionSet нормализует список расширений: убирает пробелы,
// приводит к нижнему регистру, добавляет ведущую точку, отбрасывает пустые.
func NewExtensionSet(exts ...string) ExtensionSet {
	set := make(ExtensionSet, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// ParseExtensionList разбирает список расширений через запятую (".py,.js").
func ParseExtensionList(s string) ExtensionSet {
	return NewExtensionSet(strings.Split(s, ",")...)
}

// Contains проверяет наличие расширения в наборе.
func (s ExtensionSet) Contains(ext string) bool {
	if ext == "" {
		return false
	}
	_, ok := s[ext]
	return ok
}

// Sorted возвращает расширения набора в отсортированном порядке.
func (s ExtensionSet) Sorted() []string {
	return sortedKeys(s)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
