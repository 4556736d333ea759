// Package permissions applies warehouse ownership and modes to files the
// dashboard writes.
package permissions

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"ddash/internal/config"
	"ddash/internal/services"
)

// Setter chowns and chmods dashboard output. The zero value of a disabled
// setter does nothing.
type Setter struct {
	enabled  bool
	uid      int
	gid      int
	fileMode os.FileMode
	dirMode  os.FileMode
}

// New resolves the configured owner and group. Permissions that are not
// enabled yield a setter whose Apply is a no-op.
func New(cfg *config.Config) (*Setter, error) {
	s := &Setter{
		enabled:  cfg.Permissions.Enabled,
		uid:      -1,
		gid:      -1,
		fileMode: cfg.FileMode(),
		dirMode:  cfg.DirMode(),
	}
	if !s.enabled {
		return s, nil
	}

	owner := strings.TrimSpace(cfg.Permissions.Owner)
	u, err := lookupUser(owner)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "permissions", "lookup owner", owner, err)
	}
	s.uid, _ = strconv.Atoi(u.Uid)
	s.gid, _ = strconv.Atoi(u.Gid)

	if group := strings.TrimSpace(cfg.Permissions.Group); group != "" {
		g, err := lookupGroup(group)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "permissions", "lookup group", group, err)
		}
		s.gid, _ = strconv.Atoi(g.Gid)
	}
	return s, nil
}

// Enabled reports whether Apply changes anything.
func (s *Setter) Enabled() bool {
	return s != nil && s.enabled
}

// Apply sets ownership and mode on path, descending into directories when
// recursive is set. The first failure is returned after every path has been
// attempted.
func (s *Setter) Apply(ctx context.Context, path string, recursive bool) error {
	if !s.Enabled() {
		return nil
	}
	if !recursive {
		info, err := os.Lstat(path)
		if err != nil {
			return services.Wrap(services.ErrPermission, "permissions", "stat", path, err)
		}
		return s.applyOne(path, info.Mode())
	}

	var firstErr error
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if firstErr == nil {
				firstErr = services.Wrap(services.ErrPermission, "permissions", "walk", p, err)
			}
			return nil
		}
		if applyErr := s.applyOne(p, d.Type()); applyErr != nil && firstErr == nil {
			firstErr = applyErr
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	return firstErr
}

func (s *Setter) applyOne(path string, mode fs.FileMode) error {
	if mode&fs.ModeSymlink != 0 {
		return nil
	}
	if err := os.Lchown(path, s.uid, s.gid); err != nil {
		return services.Wrap(services.ErrPermission, "permissions", "chown", path, err)
	}
	target := s.fileMode
	if mode.IsDir() {
		target = s.dirMode
	}
	if err := os.Chmod(path, target); err != nil {
		return services.Wrap(services.ErrPermission, "permissions", "chmod", path, err)
	}
	return nil
}

func lookupUser(name string) (*user.User, error) {
	if name == "" {
		return nil, fmt.Errorf("owner is empty")
	}
	if _, err := strconv.Atoi(name); err == nil {
		return user.LookupId(name)
	}
	return user.Lookup(name)
}

func lookupGroup(name string) (*user.Group, error) {
	if _, err := strconv.Atoi(name); err == nil {
		return user.LookupGroupId(name)
	}
	return user.LookupGroup(name)
}
