package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWarehouse(); err != nil {
		return err
	}
	c.normalizeCollectionSystems()
	c.normalizeQuality()
	c.normalizeWorkflow()
	c.normalizePermissions()
	c.normalizeNotifications()
	c.normalizeWatch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWarehouse() error {
	var err error
	if strings.TrimSpace(c.Warehouse.BaseDir) == "" {
		c.Warehouse.BaseDir = defaultBaseDir
	}
	if c.Warehouse.BaseDir, err = expandPath(c.Warehouse.BaseDir); err != nil {
		return fmt.Errorf("warehouse.base_dir: %w", err)
	}
	c.Warehouse.CruiseID = strings.TrimSpace(c.Warehouse.CruiseID)
	if c.Warehouse.CruiseID == "" {
		if value, ok := os.LookupEnv("DDASH_CRUISE_ID"); ok {
			c.Warehouse.CruiseID = strings.TrimSpace(value)
		}
	}
	c.Warehouse.DashboardDir = cleanRelative(c.Warehouse.DashboardDir)
	if c.Warehouse.DashboardDir == "" {
		c.Warehouse.DashboardDir = defaultDashboardDir
	}
	c.Warehouse.ManifestFilename = strings.TrimSpace(c.Warehouse.ManifestFilename)
	if c.Warehouse.ManifestFilename == "" {
		c.Warehouse.ManifestFilename = defaultManifestFilename
	}
	return nil
}

func (c *Config) normalizeCollectionSystems() {
	for i := range c.CollectionSystems {
		cs := &c.CollectionSystems[i]
		cs.ID = strings.TrimSpace(cs.ID)
		cs.Name = strings.TrimSpace(cs.Name)
		if cs.ID == "" {
			cs.ID = cs.Name
		}
		if cs.Name == "" {
			cs.Name = cs.ID
		}
		cs.DestDir = cleanRelative(cs.DestDir)
		cs.Parser = strings.ToLower(strings.TrimSpace(cs.Parser))
	}
}

func (c *Config) normalizeQuality() {
	if c.Quality.MaxDeltaTSeconds <= 0 {
		c.Quality.MaxDeltaTSeconds = defaultMaxDeltaTSeconds
	}
	if c.Quality.ResampleIntervalSeconds <= 0 {
		c.Quality.ResampleIntervalSeconds = defaultResampleIntervalSeconds
	}
	if c.Quality.FailRatio <= 0 {
		c.Quality.FailRatio = defaultFailRatio
	}
	if len(c.Quality.Bounds) == 0 {
		return
	}
	normalized := make(map[string]Bound, len(c.Quality.Bounds))
	for key, bound := range c.Quality.Bounds {
		format, channel, ok := strings.Cut(key, ".")
		if !ok {
			// Left unsplit so Validate reports the malformed key.
			normalized[key] = bound
			continue
		}
		normalized[boundKey(format, channel)] = bound
	}
	c.Quality.Bounds = normalized
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.ParseTimeoutSeconds <= 0 {
		c.Workflow.ParseTimeoutSeconds = defaultParseTimeoutSeconds
	}
	if c.Workflow.MaxFileBytes <= 0 {
		c.Workflow.MaxFileBytes = defaultMaxFileBytes
	}
}

func (c *Config) normalizePermissions() {
	c.Permissions.Owner = strings.TrimSpace(c.Permissions.Owner)
	c.Permissions.Group = strings.TrimSpace(c.Permissions.Group)
	c.Permissions.FileMode = strings.TrimSpace(c.Permissions.FileMode)
	if c.Permissions.FileMode == "" {
		c.Permissions.FileMode = defaultFileMode
	}
	c.Permissions.DirMode = strings.TrimSpace(c.Permissions.DirMode)
	if c.Permissions.DirMode == "" {
		c.Permissions.DirMode = defaultDirMode
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DDASH_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeWatch() {
	if c.Watch.DebounceSeconds <= 0 {
		c.Watch.DebounceSeconds = defaultWatchDebounceSeconds
	}
	c.Watch.MetricsBind = strings.TrimSpace(c.Watch.MetricsBind)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// cleanRelative trims and cleans a cruise-relative path. Empty and "." both
// collapse to "".
func cleanRelative(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	cleaned := filepath.ToSlash(filepath.Clean(value))
	if cleaned == "." {
		return ""
	}
	return cleaned
}
