package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"ddash/internal/config"
	"ddash/internal/parsers"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDashboardCreatable verifies that the dashboard directory exists and is
// writable, or that its nearest existing ancestor would let it be created.
func CheckDashboardCreatable(path string) Result {
	const name = "Dashboard directory"

	current := filepath.Clean(path)
	for {
		info, err := os.Stat(current)
		if err == nil {
			if !info.IsDir() {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s is not a directory)", path, current)}
			}
			if err := unix.Access(current, unix.W_OK|unix.X_OK); err != nil {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s not writable: %v)", path, current, err)}
			}
			if current == filepath.Clean(path) {
				return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (writable)", path)}
			}
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (creatable under %s)", path, current)}
		}
		if !errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing ancestor)", path)}
		}
		current = parent
	}
}

// CheckParser verifies that a collection system names a registered parser.
// Systems without a parser pass; they are skipped by every run.
func CheckParser(cs config.CollectionSystem, registry *parsers.Registry) Result {
	name := fmt.Sprintf("Parser for %s", cs.Name)
	parser := strings.TrimSpace(cs.Parser)
	if parser == "" {
		return Result{Name: name, Passed: true, Detail: "none configured (skipped)"}
	}
	if registry == nil {
		return Result{Name: name, Detail: "no parser registry"}
	}
	if _, ok := registry.Lookup(parser); !ok {
		return Result{Name: name, Detail: fmt.Sprintf("%q is not registered (known: %s)", parser, strings.Join(registry.Formats(), ", "))}
	}
	return Result{Name: name, Passed: true, Detail: parser}
}
