package testsupport

import (
	"path/filepath"
	"testing"

	"ddash/internal/config"
)

// CruiseID is the cruise every generated config points at.
const CruiseID = "CR01"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It configures an SCS system parsed as hpr and a GPS system parsed as gga.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Warehouse.BaseDir = filepath.Join(base, "warehouse")
	cfgVal.Warehouse.CruiseID = CruiseID
	cfgVal.CollectionSystems = []config.CollectionSystem{
		{ID: "SCS", Name: "SCS", DestDir: "SCS", Parser: "hpr"},
		{ID: "GPS", Name: "GPS", DestDir: "GPS", Parser: "gga"},
	}
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers sets the reconcile worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = n
	}
}

// WithCollectionSystem appends a collection system.
func WithCollectionSystem(cs config.CollectionSystem) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.CollectionSystems = append(b.cfg.CollectionSystems, cs)
	}
}

// WithMaxFileBytes sets the per-file size limit.
func WithMaxFileBytes(n int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxFileBytes = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Warehouse.BaseDir)
}
