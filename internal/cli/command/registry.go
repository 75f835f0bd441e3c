package command

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// manageProblems is the permission every problem write requires.
const manageProblems = "gestionar_problemas"

func problemID() Field {
	return Field{Name: "id", Aliases: []string{"problem_id"}, Prompt: "problem_id", Type: FieldInt64, In: InPath, Required: true}
}

func problemFields(statusRequired bool) []Field {
	return []Field{
		{Name: "title", Prompt: "title", Type: FieldString, Required: true},
		{Name: "description", Prompt: "description", Type: FieldString, Required: true},
		{Name: "priority_id", Aliases: []string{"priority"}, Prompt: "priority_id", Type: FieldInt64, Required: true},
		{Name: "category_id", Aliases: []string{"category"}, Prompt: "category_id", Type: FieldInt64, Required: true},
		{Name: "impact_id", Aliases: []string{"impact"}, Prompt: "impact_id", Type: FieldInt64, Required: true},
		{Name: "status_id", Aliases: []string{"status"}, Prompt: "status_id", Type: FieldInt64, Required: statusRequired},
		{Name: "responsible_id", Aliases: []string{"responsible"}, Prompt: "responsible_id", Type: FieldInt64},
	}
}

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "auth",
			Action:       "login",
			Method:       http.MethodPost,
			PathTemplate: "/api/v1/auth/login",
			Summary:      "log in and store the access token",
			Fields: []Field{
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "password", Prompt: "password", Type: FieldString, Required: true, Secret: true},
			},
		},
		{
			Service:      "account",
			Action:       "create",
			Method:       http.MethodPost,
			PathTemplate: "/api/v1/accounts",
			RequiresAuth: true,
			Summary:      "create an employee with its login (admin)",
			Fields: []Field{
				{Name: "employee.name", Aliases: []string{"name"}, Prompt: "employee name", Type: FieldString, Required: true},
				{Name: "employee.email", Aliases: []string{"email"}, Prompt: "employee email", Type: FieldString},
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "password", Prompt: "password", Type: FieldString, Required: true, Secret: true},
				{Name: "role_id", Aliases: []string{"role"}, Prompt: "role_id", Type: FieldInt64, Required: true},
				{Name: "active", Prompt: "active", Type: FieldBool},
			},
		},
		{
			Service:      "account",
			Action:       "delete",
			Method:       http.MethodDelete,
			PathTemplate: "/api/v1/accounts/:id",
			RequiresAuth: true,
			Summary:      "delete an account (admin)",
			Fields: []Field{
				{Name: "id", Aliases: []string{"user_id"}, Prompt: "user_id", Type: FieldInt64, In: InPath, Required: true},
			},
		},
		{
			Service:      "problem",
			Action:       "list",
			Method:       http.MethodGet,
			PathTemplate: "/api/v1/problems",
			RequiresAuth: true,
			Summary:      "list problems, newest first",
			Fields: []Field{
				{Name: "status", Type: FieldInt64, In: InQuery},
				{Name: "priority", Type: FieldInt64, In: InQuery},
				{Name: "category", Type: FieldInt64, In: InQuery},
				{Name: "responsible", Type: FieldInt64, In: InQuery},
				{Name: "search", Type: FieldString, In: InQuery},
			},
		},
		{
			Service:      "problem",
			Action:       "get",
			Method:       http.MethodGet,
			PathTemplate: "/api/v1/problems/:id",
			RequiresAuth: true,
			Summary:      "show a problem with incidents, comments, history and solutions",
			Fields:       []Field{problemID()},
		},
		{
			Service:      "problem",
			Action:       "create",
			Method:       http.MethodPost,
			PathTemplate: "/api/v1/problems",
			RequiresAuth: true,
			Summary:      "register a problem",
			Fields:       problemFields(false),
		},
		{
			Service:      "problem",
			Action:       "update",
			Method:       http.MethodPut,
			PathTemplate: "/api/v1/problems/:id",
			RequiresAuth: true,
			Summary:      "replace the editable fields of a problem",
			Fields:       append([]Field{problemID()}, problemFields(true)...),
		},
		{
			Service:      "problem",
			Action:       "delete",
			Method:       http.MethodDelete,
			PathTemplate: "/api/v1/problems/:id",
			RequiresAuth: true,
			Summary:      "delete a problem and everything it owns",
			Fields:       []Field{problemID()},
		},
		{
			Service:      "problem",
			Action:       "status",
			Method:       http.MethodPut,
			PathTemplate: "/api/v1/problems/:id/status",
			RequiresAuth: true,
			Summary:      "change the status (1-4)",
			Fields: []Field{
				problemID(),
				{Name: "status_id", Aliases: []string{"status"}, Prompt: "status_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "problem",
			Action:       "link",
			Method:       http.MethodPost,
			PathTemplate: "/api/v1/problems/:id/incidents",
			RequiresAuth: true,
			Summary:      "link an incident",
			Fields: []Field{
				problemID(),
				{Name: "incident_id", Aliases: []string{"incident"}, Prompt: "incident_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "problem",
			Action:       "unlink",
			Method:       http.MethodDelete,
			PathTemplate: "/api/v1/problems/:id/incidents/:incident_id",
			RequiresAuth: true,
			Summary:      "unlink an incident",
			Fields: []Field{
				problemID(),
				{Name: "incident_id", Aliases: []string{"incident"}, Prompt: "incident_id", Type: FieldInt64, In: InPath, Required: true},
			},
		},
		{
			Service:      "problem",
			Action:       "incidents",
			Method:       http.MethodGet,
			PathTemplate: "/api/v1/problems/:id/incidents",
			RequiresAuth: true,
			Summary:      "list linked incidents",
			Fields:       []Field{problemID()},
		},
		{
			Service:      "problem",
			Action:       "comment",
			Method:       http.MethodPost,
			PathTemplate: "/api/v1/problems/:id/comments",
			RequiresAuth: true,
			Summary:      "add a comment",
			Fields: []Field{
				problemID(),
				{Name: "body", Aliases: []string{"text"}, Prompt: "comment", Type: FieldString, Required: true},
				{Name: "kind", Type: FieldString},
			},
		},
		{
			Service:      "problem",
			Action:       "comments",
			Method:       http.MethodGet,
			PathTemplate: "/api/v1/problems/:id/comments",
			RequiresAuth: true,
			Summary:      "list comments, oldest first",
			Fields:       []Field{problemID()},
		},
		{
			Service:      "problem",
			Action:       "solution",
			Method:       http.MethodPost,
			PathTemplate: "/api/v1/problems/:id/solutions",
			RequiresAuth: true,
			Summary:      "propose a WORKAROUND or PERMANENT_FIX",
			Fields: []Field{
				problemID(),
				{Name: "title", Prompt: "title", Type: FieldString, Required: true},
				{Name: "description", Prompt: "description", Type: FieldString, Required: true},
				{Name: "solution_type", Aliases: []string{"type"}, Prompt: "solution_type", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "problem",
			Action:       "solutions",
			Method:       http.MethodGet,
			PathTemplate: "/api/v1/problems/:id/solutions",
			RequiresAuth: true,
			Summary:      "list proposed solutions, newest first",
			Fields:       []Field{problemID()},
		},
		{
			Service:      "problem",
			Action:       "history",
			Method:       http.MethodGet,
			PathTemplate: "/api/v1/problems/:id/history",
			RequiresAuth: true,
			Summary:      "show the status history",
			Fields:       []Field{problemID()},
		},
		{
			Service:      "problem",
			Action:       "stats",
			Method:       http.MethodGet,
			PathTemplate: "/api/v1/problems/statistics",
			RequiresAuth: true,
			Summary:      "dashboard statistics",
			Fields: []Field{
				{Name: "responsible", Type: FieldInt64, In: InQuery},
			},
		},
		{
			Service:      "problem",
			Action:       "catalogs",
			Method:       http.MethodGet,
			PathTemplate: "/api/v1/problems/catalogs",
			RequiresAuth: true,
			Summary:      "list categories, impacts, statuses and priorities",
		},
		{
			Service:      "problem",
			Action:       "responsibles",
			Method:       http.MethodGet,
			PathTemplate: "/api/v1/problems/responsibles",
			RequiresAuth: true,
			Summary:      "list employees that can own a problem",
		},
	}

	registry := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		if cmd.Service == "problem" && cmd.Method != http.MethodGet {
			cmd.Permission = manageProblems
		}
		registry[cmd.Key()] = cmd
	}
	return registry
}

// SortedKeys lists registry keys alphabetically.
func SortedKeys(registry map[string]Command) []string {
	keys := make([]string, 0, len(registry))
	for key := range registry {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)

	path := cmd.PathTemplate
	query := url.Values{}
	body := map[string]interface{}{}
	for _, field := range cmd.Fields {
		raw := params.Get(field.Name)
		if raw == "" {
			if field.Required {
				return RequestSpec{}, fmt.Errorf("missing parameter: %s", field.Name)
			}
			continue
		}
		switch field.In {
		case InPath:
			if _, err := convert(field, raw); err != nil {
				return RequestSpec{}, err
			}
			path = strings.ReplaceAll(path, ":"+field.Name, url.PathEscape(raw))
		case InQuery:
			if _, err := convert(field, raw); err != nil {
				return RequestSpec{}, err
			}
			query.Set(field.Name, raw)
		default:
			value, err := convert(field, raw)
			if err != nil {
				return RequestSpec{}, err
			}
			setNested(body, field.Name, value)
		}
	}
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var payload []byte
	if cmd.Method != http.MethodGet && cmd.Method != http.MethodDelete && len(body) > 0 {
		data, err := json.Marshal(body)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
		payload = data
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    payload,
	}, nil
}

func convert(field Field, raw string) (interface{}, error) {
	switch field.Type {
	case FieldInt64:
		n, err := ParseInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return n, nil
	case FieldBool:
		b, err := ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return b, nil
	default:
		return raw, nil
	}
}

func setNested(body map[string]interface{}, name string, value interface{}) {
	parts := strings.Split(name, ".")
	current := body
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
