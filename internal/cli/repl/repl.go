package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"codeblack/internal/cli/command"
	httpclient "codeblack/internal/cli/http"
	"codeblack/internal/cli/state"
	"codeblack/internal/contest/auth"
	pkgerrors "codeblack/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	tokenState *state.TokenState
	statePath  string
	prettyJSON bool
	rl         *readline.Instance
	out        io.Writer
}

// New creates a session bound to the terminal.
func New(client *httpclient.Client, commands map[string]command.Command, tokenState *state.TokenState, statePath, historyFile string, prettyJSON bool) (*Session, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "codeblack> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer(commands),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("init terminal failed: %w", err)
	}
	return &Session{
		client:     client,
		commands:   commands,
		tokenState: tokenState,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		rl:         rl,
		out:        rl.Stdout(),
	}, nil
}

func completer(commands map[string]command.Command) *readline.PrefixCompleter {
	groups := make(map[string][]readline.PrefixCompleterInterface)
	var order []string
	for _, cmd := range command.Sorted(commands) {
		if _, ok := groups[cmd.Group]; !ok {
			order = append(order, cmd.Group)
		}
		groups[cmd.Group] = append(groups[cmd.Group], readline.PcItem(cmd.Action))
	}
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("hash"),
		readline.PcItem("logout"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token")),
		readline.PcItem("show", readline.PcItem("token"), readline.PcItem("config")),
	}
	for _, g := range order {
		items = append(items, readline.PcItem(g, groups[g]...))
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands until exit or EOF.
func (s *Session) Run(ctx context.Context) {
	defer func() { _ = s.rl.Close() }()
	for {
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return
		}
		if s.handleSystemCommand(line) {
			continue
		}
		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) bool {
	switch line {
	case "help":
		s.printHelp()
		return true
	case "hash":
		s.handleHash()
		return true
	case "logout":
		*s.tokenState = state.TokenState{}
		if err := state.Clear(s.statePath); err != nil {
			s.printLine("clear token failed: %v", err)
			return true
		}
		s.printLine("logged out")
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|token|timeout <value>")
		return
	}
	if len(parts) < 2 {
		s.printLine("usage: set %s <value>", parts[0])
		return
	}
	switch parts[0] {
	case "base":
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", s.client.BaseURL())
	case "timeout":
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		*s.tokenState = state.TokenState{Token: parts[1]}
		if err := state.Save(s.statePath, *s.tokenState); err != nil {
			s.printLine("save token failed: %v", err)
			return
		}
		s.printLine("token updated")
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "token":
		if s.tokenState.Token == "" {
			s.printLine("token: <empty>")
			return
		}
		token := s.tokenState.Token
		if len(token) > 12 {
			token = token[:6] + "..." + token[len(token)-4:]
		}
		s.printLine("token: %s (%s %s)", token, s.tokenState.Username, s.tokenState.Role)
		if s.tokenState.Expired(time.Now()) {
			s.printLine("token expired at %s", s.tokenState.ExpiresAt.Format(time.RFC3339))
		}
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("tokenStatePath: %s", s.statePath)
	default:
		s.printLine("usage: show token|config")
	}
}

// handleHash prints a bcrypt hash for the auth section of the server config.
func (s *Session) handleHash() {
	secret, err := s.rl.ReadPassword("password: ")
	if err != nil {
		s.printLine("read password failed: %v", err)
		return
	}
	hash, err := auth.HashPassword(string(secret))
	if err != nil {
		s.printLine("hash failed: %v", err)
		return
	}
	s.printLine("%s", hash)
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <group> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params, err := ParseParams(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	if cmd.RequiresAuth && s.tokenState.Token == "" {
		return fmt.Errorf("not logged in, run: auth login")
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	if cmd.Key() == "auth login" {
		s.storeToken(resp)
	}
	return nil
}

// ParseParams splits key=value tokens.
func ParseParams(tokens []string) (command.Params, error) {
	params := command.Params{}
	for _, token := range tokens {
		key, value, ok := strings.Cut(token, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param: %s", token)
		}
		params.Set(key, value)
	}
	return params, nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(field command.Field) (string, error) {
	prompt := field.Prompt + ": "
	if field.Secret {
		secret, err := s.rl.ReadPassword(prompt)
		if err != nil {
			return "", fmt.Errorf("read input failed: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}
	s.rl.SetPrompt(prompt)
	defer s.rl.SetPrompt("codeblack> ")
	line, err := s.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration.Round(time.Millisecond))
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) storeToken(resp httpclient.ResponseInfo) {
	env, err := resp.Decode()
	if err != nil || env.Code != int(pkgerrors.Success) {
		return
	}
	var tok auth.Token
	if err := json.Unmarshal(env.Data, &tok); err != nil || tok.Token == "" {
		return
	}
	*s.tokenState = state.TokenState{
		Token:     tok.Token,
		Username:  tok.Username,
		Role:      string(tok.Role),
		ExpiresAt: time.UnixMilli(tok.ExpiresAt),
	}
	if err := state.Save(s.statePath, *s.tokenState); err != nil {
		s.printLine("save token failed: %v", err)
		return
	}
	s.printLine("logged in as %s (%s)", tok.Username, tok.Role)
}

func (s *Session) printHelp() {
	s.printLine("usage: <group> <action> key=value ...")
	s.printLine("system: help | exit | hash | logout | set base|timeout|token | show token|config")
	for _, cmd := range command.Sorted(s.commands) {
		s.printLine("  %-22s %s", cmd.Key(), cmd.Summary)
	}
	s.printLine("examples:")
	s.printLine("  auth login username=admin")
	s.printLine("  contest start round=1")
	s.printLine("  submission create round=1 file=./Main.java")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
