package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"itsm/internal/cli/command"
	httpclient "itsm/internal/cli/http"
	"itsm/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const defaultPrompt = "itsm> "

// PromptFunc asks the operator for a missing field value.
type PromptFunc func(field command.Field) (string, error)

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	tokenState *state.TokenState
	statePath  string
	prettyJSON bool
	out        io.Writer
	now        func() time.Time
}

func New(client *httpclient.Client, commands map[string]command.Command, tokenState *state.TokenState, statePath string, prettyJSON bool) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		tokenState: tokenState,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		out:        os.Stdout,
		now:        time.Now,
	}
}

// SetOutput redirects everything the session prints.
func (s *Session) SetOutput(w io.Writer) {
	s.out = w
}

// Run reads commands until exit, EOF or a second Ctrl-C on an empty line.
func (s *Session) Run(ctx context.Context, historyPath string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            defaultPrompt,
		HistoryFile:       historyPath,
		AutoComplete:      s.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("init line editor failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.out = rl.Stdout()

	prompt := func(field command.Field) (string, error) {
		defer rl.SetPrompt(defaultPrompt)
		if field.Secret {
			value, err := rl.ReadPassword(field.Prompt + ": ")
			return strings.TrimSpace(string(value)), err
		}
		rl.SetPrompt(field.Prompt + ": ")
		value, err := rl.Readline()
		return strings.TrimSpace(value), err
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return nil
		}
		if s.handleSystemCommand(line) {
			continue
		}
		if err := s.Execute(ctx, line, prompt); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) completer() *readline.PrefixCompleter {
	actions := map[string][]readline.PrefixCompleterInterface{}
	for _, key := range command.SortedKeys(s.commands) {
		cmd := s.commands[key]
		actions[cmd.Service] = append(actions[cmd.Service], readline.PcItem(cmd.Action))
	}
	services := make([]string, 0, len(actions))
	for service := range actions {
		services = append(services, service)
	}
	sort.Strings(services)

	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("logout"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token")),
		readline.PcItem("show", readline.PcItem("token"), readline.PcItem("config")),
	}
	for _, service := range services {
		items = append(items, readline.PcItem(service, actions[service]...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) handleSystemCommand(line string) bool {
	switch line {
	case "help":
		s.printHelp()
		return true
	case "logout":
		s.logout()
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
		s.printLine("usage: set base|token|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8083")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		if len(parts) < 2 {
			s.printLine("usage: set token <access_token>")
			return
		}
		*s.tokenState = state.TokenState{AccessToken: parts[1]}
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
		if s.tokenState.AccessToken == "" {
			s.printLine("token: <empty>")
			return
		}
		s.printLine("token: %s user: %s role: %s", s.tokenState.MaskedToken(), s.tokenState.Username, s.tokenState.Role)
		if len(s.tokenState.Permissions) > 0 {
			s.printLine("permissions: %s", strings.Join(s.tokenState.Permissions, ", "))
		}
		if s.tokenState.Expired(s.now()) {
			s.printLine("token expired at %s, run auth login", s.tokenState.ExpiresAt.Format(time.RFC3339))
		}
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("tokenStatePath: %s", s.statePath)
	default:
		s.printLine("usage: show token|config")
	}
}

// Execute runs one "<service> <action> key=value ..." line. Required fields
// that were not given are asked for through prompt.
func (s *Session) Execute(ctx context.Context, line string, prompt PromptFunc) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params, err := command.ParseArgs(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)

	if cmd.RequiresAuth && s.tokenState.AccessToken == "" {
		return fmt.Errorf("not logged in, run: auth login")
	}
	if cmd.RequiresAuth && s.tokenState.Expired(s.now()) {
		s.printLine("warning: token expired at %s, run auth login", s.tokenState.ExpiresAt.Format(time.RFC3339))
	}
	if cmd.Permission != "" && !s.tokenState.Can(cmd.Permission) {
		return fmt.Errorf("role %s lacks permission %s", s.tokenState.Role, cmd.Permission)
	}
	if err := s.promptMissing(cmd, params, prompt); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Send(ctx, req)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.updateTokenFromResponse(cmd, resp)
	return nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params, prompt PromptFunc) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		if prompt == nil {
			return fmt.Errorf("missing parameter: %s", field.Name)
		}
		value, err := prompt(field)
		if err != nil {
			return fmt.Errorf("read %s failed: %w", field.Name, err)
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) renderResponse(resp httpclient.Response) {
	s.printLine("HTTP %d (%s) request %s", resp.StatusCode, resp.Duration.Round(time.Millisecond), resp.RequestID)
	if failure := resp.Failure(); failure != "" {
		s.printLine("error: %s", failure)
	}
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

func (s *Session) updateTokenFromResponse(cmd command.Command, resp httpclient.Response) {
	if cmd.Key() != "auth login" || !resp.OK() || resp.Envelope == nil {
		return
	}
	var login struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
		Account     struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"account"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(resp.Envelope.Data, &login); err != nil || login.AccessToken == "" {
		return
	}
	*s.tokenState = state.TokenState{
		AccessToken: login.AccessToken,
		ExpiresAt:   login.ExpiresAt,
		Username:    login.Account.Username,
		Role:        login.Account.Role,
		Permissions: login.Permissions,
	}
	if err := state.Save(s.statePath, *s.tokenState); err != nil {
		s.printLine("save token failed: %v", err)
	}
}

func (s *Session) logout() {
	*s.tokenState = state.TokenState{}
	if err := state.Clear(s.statePath); err != nil {
		s.printLine("clear token failed: %v", err)
		return
	}
	s.printLine("logged out")
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | logout | set base|timeout|token | show token|config")
	s.printLine("commands:")
	for _, key := range command.SortedKeys(s.commands) {
		s.printLine("  %-22s %s", key, s.commands[key].Summary)
	}
	s.printLine("examples:")
	s.printLine("  auth login username=ana")
	s.printLine("  problem list status=1 search=\"ERP\"")
	s.printLine("  problem status id=3 status_id=4")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
