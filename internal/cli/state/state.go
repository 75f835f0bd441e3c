package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// expirySkew treats a token as expired slightly early so a command does not
// race the server's clock.
const expirySkew = 30 * time.Second

// TokenState is the operator session persisted between REPL runs.
type TokenState struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username,omitempty"`
	Role        string    `json:"role,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
}

// Expired reports whether the token is past, or within expirySkew of, its expiry.
func (s TokenState) Expired(now time.Time) bool {
	return s.AccessToken != "" && !s.ExpiresAt.IsZero() && !now.Add(expirySkew).Before(s.ExpiresAt)
}

// Can reports whether the role granted permission at login. A token set by
// hand carries no permission list and is never refused locally.
func (s TokenState) Can(permission string) bool {
	if len(s.Permissions) == 0 {
		return true
	}
	return slices.Contains(s.Permissions, permission)
}

// MaskedToken shortens the token for display.
func (s TokenState) MaskedToken() string {
	token := s.AccessToken
	if len(token) > 12 {
		return token[:6] + "..." + token[len(token)-4:]
	}
	return token
}

func Load(path string) (TokenState, error) {
	var st TokenState
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read token state failed: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse token state failed: %w", err)
	}
	return st, nil
}

// Save replaces the state file atomically with mode 0600.
func Save(path string, st TokenState) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token state failed: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("write token state failed: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write token state failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write token state failed: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write token state failed: %w", err)
	}
	return nil
}

func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token state failed: %w", err)
	}
	return nil
}
