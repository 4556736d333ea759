package config

const (
	defaultStateDir                = "~/.local/share/ddash"
	defaultLogDir                  = "~/.local/share/ddash/logs"
	defaultBaseDir                 = "/data/warehouse"
	defaultDashboardDir            = "OpenVDM/DashboardData"
	defaultManifestFilename        = "manifest.json"
	defaultMaxDeltaTSeconds        = 10.0
	defaultResampleIntervalSeconds = 60
	defaultFailRatio               = 0.10
	defaultWorkers                 = 1
	defaultParseTimeoutSeconds     = 120
	defaultMaxFileBytes            = 256 << 20
	defaultFileMode                = "0644"
	defaultDirMode                 = "0755"
	defaultNotifyRequestTimeout    = 10
	defaultWatchDebounceSeconds    = 5
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Warehouse: Warehouse{
			BaseDir:          defaultBaseDir,
			DashboardDir:     defaultDashboardDir,
			ManifestFilename: defaultManifestFilename,
		},
		Quality: Quality{
			MaxDeltaTSeconds:        defaultMaxDeltaTSeconds,
			ResampleIntervalSeconds: defaultResampleIntervalSeconds,
			FailRatio:               defaultFailRatio,
		},
		Workflow: Workflow{
			Workers:             defaultWorkers,
			ParseTimeoutSeconds: defaultParseTimeoutSeconds,
			MaxFileBytes:        defaultMaxFileBytes,
		},
		Permissions: Permissions{
			FileMode: defaultFileMode,
			DirMode:  defaultDirMode,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			ParseErrors:    true,
			RunFailures:    true,
		},
		Watch: Watch{
			DebounceSeconds: defaultWatchDebounceSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
