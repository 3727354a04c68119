package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vaultlens/internal/checksum"
	"github.com/starford/vaultlens/internal/cluster"
	"github.com/starford/vaultlens/internal/metrics"
	"github.com/starford/vaultlens/internal/parser"
	"github.com/starford/vaultlens/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Vaults   []VaultConfig     `yaml:"vaults"`
	Scan     ScanConfig        `yaml:"scan"`
	Analysis AnalysisConfig    `yaml:"analysis"`
	Auth     AuthConfig        `yaml:"auth"`
	Watch    WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	for i := range c.Vaults {
		if err := c.Vaults[i].Validate(); err != nil {
			return fmt.Errorf("vaults[%d]: %w", i, err)
		}
	}
	if err := c.Scan.Validate(); err != nil {
		return err
	}
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// VaultConfig names one vault root to manage.
type VaultConfig struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
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

// ScanConfig controls which files are notes and how they are hashed.
type ScanConfig struct {
	Extensions    []string `yaml:"extensions"`
	Exclude       []string `yaml:"exclude"`
	MetadataDir   string   `yaml:"metadata_dir"`
	HashAlgorithm string   `yaml:"hash_algorithm"`
	// Concurrency is the number of vaults scanned at once.
	Concurrency int `yaml:"concurrency"`
}

// Validate validates the scan configuration.
func (c *ScanConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Extensions, validation.Required),
		validation.Field(&c.MetadataDir, validation.Required),
		validation.Field(&c.HashAlgorithm, validation.Required, validation.In(checksum.SHA256, checksum.BLAKE3)),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// StorageOptions converts the scan configuration to storage options.
func (c *ScanConfig) StorageOptions() []storage.FSOption {
	return []storage.FSOption{
		storage.WithExtensions(c.Extensions...),
		storage.WithMetadataDir(c.MetadataDir),
		storage.WithExclude(c.Exclude...),
	}
}

// AnalysisConfig holds metric and clustering parameters. PageRank damping
// is fixed at metrics.DefaultDamping and cannot be configured.
type AnalysisConfig struct {
	HubThreshold  int     `yaml:"hub_threshold"`
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	Resolution    float64 `yaml:"resolution"`
}

// Validate validates the analysis configuration.
func (c *AnalysisConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HubThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.Tolerance, validation.Required, validation.Min(1e-12)),
		validation.Field(&c.MaxIterations, validation.Required, validation.Min(1), validation.Max(10000)),
		validation.Field(&c.Resolution, validation.Required, validation.Min(0.01)),
	)
}

// MetricsOptions converts the analysis configuration to engine options.
func (c *AnalysisConfig) MetricsOptions() metrics.Options {
	return metrics.Options{
		Damping:       metrics.DefaultDamping,
		Tolerance:     c.Tolerance,
		MaxIterations: c.MaxIterations,
		HubThreshold:  c.HubThreshold,
	}
}

// ClusterOptions converts the analysis configuration to detector options.
func (c *AnalysisConfig) ClusterOptions() cluster.Options {
	return cluster.Options{Resolution: c.Resolution, MaxLevels: cluster.DefaultMaxLevels}
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(10*time.Millisecond)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./vaultlens.db",
		},
		Scan: ScanConfig{
			Extensions:    []string{parser.DefaultExtension},
			MetadataDir:   storage.DefaultMetadataDir,
			HashAlgorithm: checksum.SHA256,
			Concurrency:   4,
		},
		Analysis: AnalysisConfig{
			HubThreshold:  metrics.DefaultHubThreshold,
			Tolerance:     metrics.DefaultTolerance,
			MaxIterations: metrics.DefaultMaxIterations,
			Resolution:    cluster.DefaultResolution,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 500 * time.Millisecond,
		},
	}
}
