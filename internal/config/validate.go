package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ddash/internal/textutil"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWarehouse(); err != nil {
		return err
	}
	if err := c.validateCollectionSystems(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validatePermissions(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWarehouse() error {
	if c.Warehouse.CruiseID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/ddash/config.toml"
		}
		return fmt.Errorf("warehouse.cruise_id is required. Set DDASH_CRUISE_ID env var or edit %s (create with 'ddash config init')", defaultPath)
	}
	if strings.ContainsAny(c.Warehouse.CruiseID, `/\`) {
		return fmt.Errorf("warehouse.cruise_id %q must not contain path separators", c.Warehouse.CruiseID)
	}
	if escapesRoot(c.Warehouse.DashboardDir) {
		return fmt.Errorf("warehouse.dashboard_dir %q must be relative to the cruise directory", c.Warehouse.DashboardDir)
	}
	if strings.ContainsAny(c.Warehouse.ManifestFilename, `/\`) {
		return errors.New("warehouse.manifest_filename must be a bare file name")
	}
	return nil
}

func (c *Config) validateCollectionSystems() error {
	seen := make(map[string]struct{}, len(c.CollectionSystems))
	for i, cs := range c.CollectionSystems {
		if cs.ID == "" {
			return fmt.Errorf("collection_systems[%d]: id or name must be set", i)
		}
		key := textutil.FoldKey(cs.ID)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("collection_systems[%d]: duplicate id %q", i, cs.ID)
		}
		seen[key] = struct{}{}
		if cs.DestDir == "" {
			return fmt.Errorf("collection_systems[%d] (%s): dest_dir must be set", i, cs.ID)
		}
		if escapesRoot(cs.DestDir) {
			return fmt.Errorf("collection_systems[%d] (%s): dest_dir %q must be relative to the cruise directory", i, cs.ID, cs.DestDir)
		}
	}
	return nil
}

func (c *Config) validateQuality() error {
	if c.Quality.FailRatio >= 1 {
		return errors.New("quality.fail_ratio must be below 1")
	}
	for key, bound := range c.Quality.Bounds {
		if !strings.Contains(key, ".") {
			return fmt.Errorf("quality.bounds key %q must be <format>.<channel>", key)
		}
		if bound.Min > bound.Max {
			return fmt.Errorf("quality.bounds.%s: min %.3f exceeds max %.3f", key, bound.Min, bound.Max)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":                  c.Workflow.Workers,
		"workflow.parse_timeout_seconds":    c.Workflow.ParseTimeoutSeconds,
		"quality.resample_interval_seconds": c.Quality.ResampleIntervalSeconds,
		"notifications.request_timeout":     c.Notifications.RequestTimeout,
		"watch.debounce_seconds":            c.Watch.DebounceSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.MaxFileBytes <= 0 {
		return errors.New("workflow.max_file_bytes must be positive")
	}
	return nil
}

func (c *Config) validatePermissions() error {
	if _, err := parseMode(c.Permissions.FileMode); err != nil {
		return fmt.Errorf("permissions.file_mode: %w", err)
	}
	if _, err := parseMode(c.Permissions.DirMode); err != nil {
		return fmt.Errorf("permissions.dir_mode: %w", err)
	}
	if c.Permissions.Enabled && c.Permissions.Owner == "" {
		return errors.New("permissions.owner must be set when permissions.enabled is true")
	}
	return nil
}

func parseMode(value string) (os.FileMode, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q", value)
	}
	if parsed > 0o777 {
		return 0, fmt.Errorf("mode %q exceeds 0777", value)
	}
	return os.FileMode(parsed), nil
}

func escapesRoot(rel string) bool {
	if rel == "" {
		return false
	}
	if filepath.IsAbs(rel) {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, "../")
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
