// Package profile describes the languages the sandbox can execute.
package profile

import (
	"strings"

	appErr "codeblack/pkg/errors"
)

const (
	LanguageC          = "c"
	LanguageJava       = "java"
	LanguagePython     = "python"
	LanguageJavaScript = "javascript"
)

// LanguageSpec describes how to compile and run one language.
// Command templates accept {src}, {bin} and {dir} placeholders.
type LanguageSpec struct {
	ID               string   `yaml:"id"`
	SourceFile       string   `yaml:"sourceFile"`
	BinaryFile       string   `yaml:"binaryFile"`
	CompileEnabled   bool     `yaml:"compileEnabled"`
	CompileCmdTpl    string   `yaml:"compileCmd"`
	RunCmdTpl        string   `yaml:"runCmd"`
	Env              []string `yaml:"env"`
	TimeMultiplier   float64  `yaml:"timeMultiplier"`
	MemoryMultiplier float64  `yaml:"memoryMultiplier"`
	// MemoryLimitMB is the address space cap; runtimes that reserve large
	// virtual regions up front (JVM, V8) keep it at zero.
	MemoryLimitMB int64 `yaml:"memoryLimitMB"`
}

// DefaultLanguages returns the built-in table for c, java, python and javascript.
func DefaultLanguages() []LanguageSpec {
	return []LanguageSpec{
		{
			ID:             LanguageC,
			SourceFile:     "main.c",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "gcc -O2 -std=c11 -o {bin} {src} -lm",
			RunCmdTpl:      "{bin}",
			TimeMultiplier: 1,
			MemoryLimitMB:  256,
		},
		{
			ID:             LanguageJava,
			SourceFile:     "Main.java",
			BinaryFile:     "Main.class",
			CompileEnabled: true,
			CompileCmdTpl:  "javac -encoding UTF-8 -d {dir} {src}",
			RunCmdTpl:      "java -Xss64m -cp {dir} Main",
			TimeMultiplier: 2,
		},
		{
			ID:             LanguagePython,
			SourceFile:     "main.py",
			RunCmdTpl:      "python3 -B {src}",
			Env:            []string{"PYTHONIOENCODING=utf-8", "PYTHONDONTWRITEBYTECODE=1"},
			TimeMultiplier: 1,
			MemoryLimitMB:  256,
		},
		{
			ID:             LanguageJavaScript,
			SourceFile:     "main.js",
			RunCmdTpl:      "node {src}",
			TimeMultiplier: 1,
		},
	}
}

// Registry resolves language ids to specs.
type Registry struct {
	languages map[string]LanguageSpec
}

// NewRegistry builds a registry; entries without an id are skipped.
func NewRegistry(languages []LanguageSpec) *Registry {
	langMap := make(map[string]LanguageSpec, len(languages))
	for _, lang := range languages {
		id := NormalizeLanguage(lang.ID)
		if id == "" {
			continue
		}
		lang.ID = id
		langMap[id] = lang
	}
	return &Registry{languages: langMap}
}

// Get returns the spec for a language or LanguageNotSupported.
func (r *Registry) Get(id string) (LanguageSpec, error) {
	normalized := NormalizeLanguage(id)
	if normalized == "" {
		return LanguageSpec{}, appErr.ValidationError("language", "required")
	}
	lang, ok := r.languages[normalized]
	if !ok {
		return LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "unsupported language: %s", id)
	}
	return lang, nil
}

// Supported reports whether the language id is registered.
func (r *Registry) Supported(id string) bool {
	_, ok := r.languages[NormalizeLanguage(id)]
	return ok
}

// NormalizeLanguage lowercases the id and folds common aliases.
func NormalizeLanguage(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	switch id {
	case "py", "python3":
		return LanguagePython
	case "js", "node", "nodejs":
		return LanguageJavaScript
	}
	return id
}
