package preflight

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"ddash/internal/config"
	"ddash/internal/manifest"
)

// ManifestProbe reports the current state of the dashboard manifest.
type ManifestProbe struct {
	Path    string
	Exists  bool
	Entries int
	Locked  bool
	Err     error
}

// ProbeManifest reads the manifest and checks whether a run holds its lock.
// It never takes the lock for longer than the check.
func ProbeManifest(cfg *config.Config) ManifestProbe {
	probe := ManifestProbe{Path: cfg.ManifestPath()}

	if _, err := os.Stat(probe.Path); err == nil {
		probe.Exists = true
	} else if !errors.Is(err, os.ErrNotExist) {
		probe.Err = err
		return probe
	}

	if _, err := os.Stat(manifest.LockPath(probe.Path)); err == nil {
		fl := flock.New(manifest.LockPath(probe.Path))
		locked, err := fl.TryLock()
		switch {
		case err != nil:
			probe.Err = err
		case locked:
			_ = fl.Unlock()
		default:
			probe.Locked = true
		}
	}

	store := manifest.New(probe.Path, manifest.Options{})
	if err := store.Load(); err != nil {
		probe.Err = err
		return probe
	}
	probe.Entries = store.Len()
	return probe
}

// Detail renders a display-friendly summary for status output.
func (p ManifestProbe) Detail() string {
	switch {
	case p.Err != nil:
		return fmt.Sprintf("%s (error: %v)", p.Path, p.Err)
	case !p.Exists:
		return fmt.Sprintf("%s (not written yet)", p.Path)
	case p.Locked:
		return fmt.Sprintf("%s (%d entries, run in progress)", p.Path, p.Entries)
	default:
		return fmt.Sprintf("%s (%d entries)", p.Path, p.Entries)
	}
}
