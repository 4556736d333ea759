package permissions_test

import (
	"context"
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"ddash/internal/config"
	"ddash/internal/permissions"
	"ddash/internal/services"
)

func TestDisabledSetterIsNoop(t *testing.T) {
	cfg := config.Default()
	setter, err := permissions.New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if setter.Enabled() {
		t.Fatal("expected disabled setter")
	}
	if err := setter.Apply(context.Background(), filepath.Join(t.TempDir(), "missing"), false); err != nil {
		t.Fatalf("disabled Apply should ignore paths, got %v", err)
	}
}

func TestApplyRecursiveSetsModes(t *testing.T) {
	current, err := user.Current()
	if err != nil {
		t.Skipf("current user unavailable: %v", err)
	}
	cfg := config.Default()
	cfg.Permissions.Enabled = true
	cfg.Permissions.Owner = current.Uid
	cfg.Permissions.FileMode = "0640"
	cfg.Permissions.DirMode = "0750"

	setter, err := permissions.New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	root := t.TempDir()
	dir := filepath.Join(root, "SCS")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "gyro.json")
	if err := os.WriteFile(file, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := setter.Apply(context.Background(), root, true); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if info, _ := os.Stat(dir); info.Mode().Perm() != 0o750 {
		t.Fatalf("expected dir mode 0750, got %v", info.Mode().Perm())
	}
	if info, _ := os.Stat(file); info.Mode().Perm() != 0o640 {
		t.Fatalf("expected file mode 0640, got %v", info.Mode().Perm())
	}
}

func TestApplyMissingPathFails(t *testing.T) {
	current, err := user.Current()
	if err != nil {
		t.Skipf("current user unavailable: %v", err)
	}
	cfg := config.Default()
	cfg.Permissions.Enabled = true
	cfg.Permissions.Owner = current.Uid
	setter, err := permissions.New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = setter.Apply(context.Background(), filepath.Join(t.TempDir(), "missing.json"), false)
	if !errors.Is(err, services.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestUnknownOwnerIsConfigurationError(t *testing.T) {
	cfg := config.Default()
	cfg.Permissions.Enabled = true
	cfg.Permissions.Owner = "ddash-no-such-user-x9"
	if _, err := permissions.New(&cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
