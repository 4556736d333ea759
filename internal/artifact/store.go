package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"ddash/internal/fileutil"
	"ddash/internal/services"
)

// RelPath maps a cruise-relative raw file path to its cruise-relative
// artifact path: the dashboard directory joined with the raw path, the base
// name cut at its first dot and suffixed ".json".
//
//	RelPath("OpenVDM/DashboardData", "SCS/gyro_20160829.Raw") == "OpenVDM/DashboardData/SCS/gyro_20160829.json"
func RelPath(dashboardDir, rawRel string) string {
	rawRel = path.Clean(filepath.ToSlash(rawRel))
	dir, base := path.Split(rawRel)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return path.Join(filepath.ToSlash(dashboardDir), dir, base+".json")
}

// Write stores a atomically at absPath.
func Write(absPath string, a *Artifact, mode, dirMode os.FileMode) error {
	if a == nil {
		return services.Wrap(services.ErrArtifactWrite, "artifact", "write", "nil artifact", nil)
	}
	if err := fileutil.WriteJSONAtomic(absPath, a, mode, dirMode); err != nil {
		return services.Wrap(services.ErrArtifactWrite, "artifact", "write", absPath, err)
	}
	return nil
}

// Read loads an artifact document.
func Read(absPath string) (*Artifact, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	a := New()
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", absPath, err)
	}
	return a, nil
}

// Delete removes the artifact at absPath if present.
func Delete(absPath string) (bool, error) {
	removed, err := fileutil.RemoveIfExists(absPath)
	if err != nil {
		return false, services.Wrap(services.ErrArtifactWrite, "artifact", "delete", absPath, err)
	}
	return removed, nil
}
