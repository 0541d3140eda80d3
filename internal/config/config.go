// Package config handles .gigline configuration file parsing.
//
// The .gigline file is located at the workspace root and contains:
//
//	device_id: "uuid"              - Device identifier (auto-generated)
//	server_url: "https://..."      - GigLine server URL
//	identity: "u_1f2e3d"           - User identifier (optional; derived from token)
//	alias: "Maya"                  - Display name shown in CLI output
//	token: "eyJ..."                - Bearer token (GIGLINE_TOKEN overrides)
//	history_limit: 100             - History page size (optional)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file.
const FileName = ".gigline"

// TokenEnv is the environment variable that overrides the config token.
const TokenEnv = "GIGLINE_TOKEN"

// customPath holds an optional custom config file path.
// When empty, Load() uses the default FileName.
var customPath string

// SetPath sets a custom config file path for Load() to use.
// Pass an empty string to reset to the default path.
func SetPath(path string) {
	customPath = path
}

// GetPath returns the current config file path.
// Returns the custom path if set, otherwise the default FileName.
func GetPath() string {
	if customPath != "" {
		return customPath
	}
	return FileName
}

// FindPath resolves the config file path using the same logic as Load(),
// without reading or parsing the file contents.
func FindPath() (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	return findDefaultConfigPath()
}

// WorkspaceRoot returns the directory containing the resolved config file.
func WorkspaceRoot() (string, error) {
	path, err := FindPath()
	if err != nil {
		return "", err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Dir(path), nil
}

// Validation patterns (matching the server's account rules)
var (
	uuidPattern     = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	urlPattern      = regexp.MustCompile(`^https?://[^\s]+$`)
	identityPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)
	aliasPattern    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9 '\-]{0,63}$`)
)

// Config represents the .gigline configuration file.
type Config struct {
	DeviceID     string `yaml:"device_id"`
	ServerURL    string `yaml:"server_url"`
	Identity     string `yaml:"identity,omitempty"`
	Alias        string `yaml:"alias,omitempty"`
	RawToken     string `yaml:"token,omitempty"`
	HistoryLimit int    `yaml:"history_limit,omitempty"`
}

// Token returns the bearer token, preferring the GIGLINE_TOKEN environment
// variable over the config file.
func (c *Config) Token() string {
	if env := strings.TrimSpace(os.Getenv(TokenEnv)); env != "" {
		return env
	}
	return strings.TrimSpace(c.RawToken)
}

// Load reads and parses the .gigline configuration file.
// Uses the custom path if set via SetPath(), otherwise uses the default FileName.
func Load() (*Config, error) {
	if customPath != "" {
		return LoadFrom(customPath)
	}

	path, err := findDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads and parses a .gigline configuration file from a specific path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err // Return unwrapped for os.IsNotExist() checks
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &cfg, nil
}

func findDefaultConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		// Fallback: look only in current directory
		return FileName, nil
	}

	gitRoot, ok := findGitRoot(cwd)
	if !ok {
		// Not in a git worktree: don't walk parents (avoid accidentally
		// picking up an unrelated .gigline higher up).
		return FileName, nil
	}

	dir := cwd
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		if dir == gitRoot {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	// Return an IsNotExist error with a helpful path (repo root) so callers
	// can still rely on os.IsNotExist(err).
	rootCandidate := filepath.Join(gitRoot, FileName)
	return rootCandidate, &os.PathError{Op: "open", Path: rootCandidate, Err: os.ErrNotExist}
}

func findGitRoot(start string) (string, bool) {
	dir := start
	for {
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			return dir, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// Save writes the configuration to the config file.
// Uses the custom path if set via SetPath(), otherwise uses the default FileName.
func (c *Config) Save() error {
	path := GetPath()
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Write with header comment
	header := "# Generated by: glc init\n# DO NOT COMMIT - add to .gitignore\n\n"
	content := header + string(data)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if !uuidPattern.MatchString(c.DeviceID) {
		return fmt.Errorf("device_id must be a valid UUID")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if !urlPattern.MatchString(c.ServerURL) {
		return fmt.Errorf("server_url must be a valid HTTP(S) URL")
	}
	if c.Identity != "" && !identityPattern.MatchString(c.Identity) {
		return fmt.Errorf("identity must start with an alphanumeric and contain only alphanumerics, dashes, or underscores (max 64 chars)")
	}
	if c.Alias != "" && !aliasPattern.MatchString(c.Alias) {
		return fmt.Errorf("alias must start with a letter and contain only letters, digits, spaces, hyphens, or apostrophes (max 64 chars)")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be non-negative")
	}

	return nil
}

// IsValidIdentity checks if a string matches the server-compatible user
// identifier rules.
func IsValidIdentity(identity string) bool {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false
	}
	return identityPattern.MatchString(identity)
}
