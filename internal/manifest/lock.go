package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"ddash/internal/services"
)

// Lock is an exclusive advisory lock held on "<manifest>.lock".
type Lock struct {
	path string
	fl   *flock.Flock
}

// LockPath returns the lock file used for the manifest at manifestPath.
func LockPath(manifestPath string) string {
	return manifestPath + ".lock"
}

// TryLock acquires the manifest lock without blocking. A lock held by
// another process fails with ErrManifestBusy.
func TryLock(manifestPath string, dirMode os.FileMode) (*Lock, error) {
	lockPath := LockPath(manifestPath)
	if dirMode == 0 {
		dirMode = 0o755
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), dirMode); err != nil {
		return nil, services.Wrap(services.ErrManifestWrite, "manifest", "lock", "create lock directory", err)
	}

	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrManifestBusy, "manifest", "lock", "acquire lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrManifestBusy, "manifest", "lock",
			fmt.Sprintf("another run holds %s", lockPath), nil)
	}
	return &Lock{path: lockPath, fl: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Unlock releases the lock. The lock file is left in place.
func (l *Lock) Unlock() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
