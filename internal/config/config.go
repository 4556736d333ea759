package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"ddash/internal/textutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local state directories.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Warehouse locates the cruise data tree and the dashboard output inside it.
type Warehouse struct {
	BaseDir          string `toml:"base_dir"`
	CruiseID         string `toml:"cruise_id"`
	DashboardDir     string `toml:"dashboard_dir"`
	ManifestFilename string `toml:"manifest_filename"`
}

// CollectionSystem describes one data-acquisition source.
type CollectionSystem struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	DestDir  string `toml:"dest_dir"`
	Parser   string `toml:"parser"`
	Disabled bool   `toml:"disabled"`
}

// Bound is an inclusive validity interval for one channel.
type Bound struct {
	Min float64 `toml:"min"`
	Max float64 `toml:"max"`
}

// Quality contains thresholds applied by the statistics engine.
type Quality struct {
	MaxDeltaTSeconds        float64          `toml:"max_delta_t_seconds"`
	ResampleIntervalSeconds int              `toml:"resample_interval_seconds"`
	FailRatio               float64          `toml:"fail_ratio"`
	Bounds                  map[string]Bound `toml:"bounds"`
}

// Workflow contains run execution limits.
type Workflow struct {
	Workers             int   `toml:"workers"`
	ParseTimeoutSeconds int   `toml:"parse_timeout_seconds"`
	MaxFileBytes        int64 `toml:"max_file_bytes"`
}

// Rebuild contains full-rebuild options.
type Rebuild struct {
	PruneOrphans bool `toml:"prune_orphans"`
}

// Permissions controls post-write ownership and mode changes.
type Permissions struct {
	Enabled  bool   `toml:"enabled"`
	Owner    string `toml:"owner"`
	Group    string `toml:"group"`
	FileMode string `toml:"file_mode"`
	DirMode  string `toml:"dir_mode"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ParseErrors    bool   `toml:"parse_errors"`
	RunFailures    bool   `toml:"run_failures"`
}

// Watch configures the directory watcher.
type Watch struct {
	DebounceSeconds int    `toml:"debounce_seconds"`
	MetricsBind     string `toml:"metrics_bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for ddash.
//
// Configuration sections by subsystem:
//   - Paths: local state (run ledger) and log directories
//   - Warehouse: cruise data tree and dashboard output location
//   - CollectionSystems: raw-file sources and their registered parsers
//   - Quality: validity bounds and verdict thresholds
//   - Workflow: worker count and per-file limits
//   - Rebuild: orphan artifact pruning
//   - Permissions: ownership and modes applied after writes
//   - Notifications: ntfy push notification settings
//   - Watch: watcher debounce and metrics endpoint
//   - Logging: log format and level
type Config struct {
	Paths             Paths              `toml:"paths"`
	Warehouse         Warehouse          `toml:"warehouse"`
	CollectionSystems []CollectionSystem `toml:"collection_systems"`
	Quality           Quality            `toml:"quality"`
	Workflow          Workflow           `toml:"workflow"`
	Rebuild           Rebuild            `toml:"rebuild"`
	Permissions       Permissions        `toml:"permissions"`
	Notifications     Notifications      `toml:"notifications"`
	Watch             Watch              `toml:"watch"`
	Logging           Logging            `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ddash/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ddash.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CruiseDir returns the absolute cruise directory.
func (c *Config) CruiseDir() string {
	return filepath.Join(c.Warehouse.BaseDir, c.Warehouse.CruiseID)
}

// DashboardPath returns the absolute dashboard output directory.
func (c *Config) DashboardPath() string {
	return filepath.Join(c.CruiseDir(), c.Warehouse.DashboardDir)
}

// ManifestPath returns the absolute path of the dashboard manifest document.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DashboardPath(), c.Warehouse.ManifestFilename)
}

// RunsDBPath returns the run ledger database location.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// WithCruise returns a shallow copy of the config pointed at another cruise.
func (c *Config) WithCruise(cruiseID string) *Config {
	clone := *c
	if trimmed := strings.TrimSpace(cruiseID); trimmed != "" {
		clone.Warehouse.CruiseID = trimmed
	}
	return &clone
}

// CollectionSystem resolves a collection system by id or name. Matching
// ignores case and whitespace.
func (c *Config) CollectionSystem(id string) (CollectionSystem, bool) {
	key := textutil.FoldKey(id)
	if key == "" {
		return CollectionSystem{}, false
	}
	for _, cs := range c.CollectionSystems {
		if textutil.FoldKey(cs.ID) == key || textutil.FoldKey(cs.Name) == key {
			return cs, true
		}
	}
	return CollectionSystem{}, false
}

// EnabledCollectionSystems returns the systems eligible for dashboard processing.
func (c *Config) EnabledCollectionSystems() []CollectionSystem {
	out := make([]CollectionSystem, 0, len(c.CollectionSystems))
	for _, cs := range c.CollectionSystems {
		if cs.Disabled {
			continue
		}
		out = append(out, cs)
	}
	return out
}

// BoundFor returns the configured override for a format channel, if any.
func (c *Config) BoundFor(format, channel string) (Bound, bool) {
	b, ok := c.Quality.Bounds[boundKey(format, channel)]
	return b, ok
}

// ParseTimeout returns the per-file parse deadline.
func (c *Config) ParseTimeout() time.Duration {
	return time.Duration(c.Workflow.ParseTimeoutSeconds) * time.Second
}

// ResampleInterval returns the visualization bucket width.
func (c *Config) ResampleInterval() time.Duration {
	return time.Duration(c.Quality.ResampleIntervalSeconds) * time.Second
}

// MaxDeltaT returns the largest permitted gap between consecutive rows.
func (c *Config) MaxDeltaT() time.Duration {
	return time.Duration(c.Quality.MaxDeltaTSeconds * float64(time.Second))
}

// FileMode returns the parsed artifact file mode.
func (c *Config) FileMode() os.FileMode {
	mode, _ := parseMode(c.Permissions.FileMode)
	return mode
}

// DirMode returns the parsed dashboard directory mode.
func (c *Config) DirMode() os.FileMode {
	mode, _ := parseMode(c.Permissions.DirMode)
	return mode
}

func boundKey(format, channel string) string {
	return textutil.FoldKey(format) + "." + textutil.FoldKey(channel)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
