package command

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FieldType describes how a field value is parsed.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFile
)

// Field is one input of a command.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
	// Secret fields are read without echo.
	Secret bool
}

// Command binds "group action" to an HTTP endpoint.
type Command struct {
	Group        string
	Action       string
	Summary      string
	Method       string
	Path         string
	RequiresAuth bool
	Fields       []Field
}

// Key is the registry key of the command.
func (c Command) Key() string {
	return c.Group + " " + c.Action
}

// RequestSpec is the built HTTP request.
type RequestSpec struct {
	Method string
	Path   string
	Body   []byte
}

// Params holds key=value arguments, keyed case-insensitively.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

// Canonicalize rewrites aliases to field names.
func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

func ParseInt(value string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	return int(n), err
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}
