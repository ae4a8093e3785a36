package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Vault     VaultConfig       `yaml:"vault"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Variables VariablesConfig   `yaml:"variables"`
	Watch     WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Variables.Validate(); err != nil {
		return err
	}
	return c.Watch.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig describes the Markdown vault directory.
//
// ReservedDirs are path prefixes left out of the property tree.
// Extensions are the file extensions treated as documents.
type VaultConfig struct {
	Path         string   `yaml:"path"`
	ReservedDirs []string `yaml:"reserved_dirs"`
	Extensions   []string `yaml:"extensions"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Extensions, validation.Required, validation.Each(validation.By(validateExtension))),
	)
}

func validateExtension(v any) error {
	ext, _ := v.(string)
	if !strings.HasPrefix(ext, ".") || len(ext) < 2 || strings.ContainsAny(ext, "/\\") {
		return errors.New("must start with a dot, e.g. .md")
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// VariablesConfig controls how references are written and displayed.
type VariablesConfig struct {
	Delimiters    DelimitersConfig `yaml:"delimiters"`
	Highlight     bool             `yaml:"highlight"`
	PreviewLength int              `yaml:"preview_length"`
}

// DelimitersConfig holds the text that opens and closes a reference.
type DelimitersConfig struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// Validate validates the variables configuration.
func (c *VariablesConfig) Validate() error {
	if err := c.Delimiters.Validate(); err != nil {
		return fmt.Errorf("variables: delimiters: %w", err)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.PreviewLength, validation.Min(1)),
	)
}

// Validate validates the delimiters.
func (c *DelimitersConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Open, validation.Required),
		validation.Field(&c.Close, validation.Required),
	)
}

// WatchConfig controls change notification.
//
// Debounce coalesces bursts of file events into one batch.
// TreeThrottle is the minimum interval between tree.updated SSE events.
type WatchConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	TreeThrottle time.Duration `yaml:"tree_throttle"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.TreeThrottle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:         "./vault",
			ReservedDirs: []string{".obsidian", ".git"},
			Extensions:   []string{".md"},
		},
		SQLite: SQLiteConfig{
			Path: "./livevars.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Variables: VariablesConfig{
			Delimiters: DelimitersConfig{
				Open:  "{{",
				Close: "}}",
			},
			Highlight:     true,
			PreviewLength: 50,
		},
		Watch: WatchConfig{
			Debounce:     200 * time.Millisecond,
			TreeThrottle: 2 * time.Second,
		},
	}
}
