package command

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Registry returns every CLI command keyed by "group action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Group:   "auth",
			Action:  "login",
			Summary: "log in and store the token",
			Method:  "POST",
			Path:    "/api/v1/auth/login",
			Fields: []Field{
				{Name: "username", Aliases: []string{"u"}, Prompt: "username", Required: true},
				{Name: "password", Aliases: []string{"p"}, Prompt: "password", Required: true, Secret: true},
			},
		},
		{
			Group:   "server",
			Action:  "health",
			Summary: "server and judge status",
			Method:  "GET",
			Path:    "/health",
		},
		{
			Group:        "contest",
			Action:       "state",
			Summary:      "full contest snapshot",
			Method:       "GET",
			Path:         "/api/v1/admin/state",
			RequiresAuth: true,
		},
		{
			Group:        "contest",
			Action:       "start",
			Summary:      "start a round (round=0 starts the next one)",
			Method:       "POST",
			Path:         "/api/v1/admin/rounds/start",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "round", Aliases: []string{"r"}, Prompt: "round", Type: FieldInt},
			},
		},
		{
			Group:        "contest",
			Action:       "end",
			Summary:      "end the active round",
			Method:       "POST",
			Path:         "/api/v1/admin/rounds/end",
			RequiresAuth: true,
		},
		{
			Group:        "contest",
			Action:       "reset",
			Summary:      "reset the whole contest",
			Method:       "POST",
			Path:         "/api/v1/admin/reset",
			RequiresAuth: true,
		},
		{
			Group:        "user",
			Action:       "remove",
			Summary:      "remove a competitor",
			Method:       "POST",
			Path:         "/api/v1/admin/users/remove",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "username", Aliases: []string{"u"}, Prompt: "username", Required: true},
			},
		},
		{
			Group:        "user",
			Action:       "revoke",
			Summary:      "let a removed competitor back in",
			Method:       "POST",
			Path:         "/api/v1/admin/users/revoke",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "username", Aliases: []string{"u"}, Prompt: "username", Required: true},
			},
		},
		{
			Group:        "submission",
			Action:       "create",
			Summary:      "submit code for the active round",
			Method:       "POST",
			Path:         "/api/v1/submissions",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "round", Aliases: []string{"r"}, Prompt: "round", Type: FieldInt, Required: true},
				{Name: "file", Aliases: []string{"f"}, Prompt: "source file", Type: FieldFile, Required: true},
				{Name: "language", Aliases: []string{"lang", "l"}, Prompt: "language"},
			},
		},
		{
			Group:        "submission",
			Action:       "mine",
			Summary:      "list my submissions",
			Method:       "GET",
			Path:         "/api/v1/submissions/mine",
			RequiresAuth: true,
		},
		{
			Group:        "submission",
			Action:       "list",
			Summary:      "list every submission",
			Method:       "GET",
			Path:         "/api/v1/admin/submissions",
			RequiresAuth: true,
		},
		{
			Group:        "submission",
			Action:       "evaluate",
			Summary:      "grade all pending submissions",
			Method:       "POST",
			Path:         "/api/v1/admin/submissions/evaluate-pending",
			RequiresAuth: true,
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Sorted returns the commands ordered by key.
func Sorted(commands map[string]Command) []Command {
	out := make([]Command, 0, len(commands))
	for _, cmd := range commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// BuildRequest creates the HTTP request for cmd.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	for _, field := range cmd.Fields {
		if field.Required && params.Get(field.Name) == "" {
			return RequestSpec{}, fmt.Errorf("missing parameter: %s", field.Name)
		}
	}

	spec := RequestSpec{Method: cmd.Method, Path: cmd.Path}
	if cmd.Method == "GET" {
		return spec, nil
	}
	payload, err := buildPayload(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}
	if payload != nil {
		spec.Body, err = json.Marshal(payload)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
	}
	return spec, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Key() {
	case "auth login":
		return map[string]string{
			"username": params.Get("username"),
			"password": params.Get("password"),
		}, nil
	case "contest start":
		if params.Get("round") == "" {
			return nil, nil
		}
		round, err := ParseInt(params.Get("round"))
		if err != nil {
			return nil, fmt.Errorf("invalid round: %w", err)
		}
		return map[string]int{"round": round}, nil
	case "user remove", "user revoke":
		return map[string]string{"username": params.Get("username")}, nil
	case "submission create":
		return buildSubmitPayload(params)
	}
	return nil, nil
}

func buildSubmitPayload(params Params) (interface{}, error) {
	round, err := ParseInt(params.Get("round"))
	if err != nil {
		return nil, fmt.Errorf("invalid round: %w", err)
	}
	path := params.Get("file")
	code, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%s is empty", path)
	}
	language := params.Get("language")
	if language == "" {
		language = LanguageFromPath(path)
	}
	if language == "" {
		return nil, fmt.Errorf("cannot infer language from %s, pass language=", path)
	}
	return map[string]interface{}{
		"code":     code,
		"language": language,
		"round":    round,
	}, nil
}

// LanguageFromPath maps a source file extension to a contest language.
func LanguageFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c":
		return "c"
	case ".java":
		return "java"
	case ".py":
		return "python"
	case ".js", ".mjs":
		return "javascript"
	}
	return ""
}
