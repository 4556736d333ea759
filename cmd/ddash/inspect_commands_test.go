package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"ddash/internal/artifact"
	"ddash/internal/testsupport"
)

func TestDetectCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteFile(t, env.cfg, hprRaw, testsupport.HPRData(5, 0))

	out, _, err := runCLI(t, []string{"detect", path}, env.configPath)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got := strings.TrimSpace(out); got != "hpr" {
		t.Fatalf("detect = %q, want hpr", got)
	}

	if _, _, err := runCLI(t, []string{"detect", "--system", "GPS", path}, env.configPath); err == nil {
		t.Fatal("expected the GPS parser to reject an hpr file")
	}
}

func TestDetectCommandUnknownSystem(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteFile(t, env.cfg, hprRaw, testsupport.HPRData(5, 0))

	if _, _, err := runCLI(t, []string{"detect", "--system", "nope", path}, env.configPath); err == nil {
		t.Fatal("expected error for unknown collection system")
	}
}

func TestParseCommandPrintsArtifact(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteFile(t, env.cfg, hprRaw, testsupport.HPRData(10, 2))

	out, _, err := runCLI(t, []string{"parse", path}, env.configPath)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var doc artifact.Artifact
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode artifact: %v\n%s", err, out)
	}
	if len(doc.QualityTests) == 0 {
		t.Fatal("expected quality tests in the artifact")
	}
	if len(doc.VisualizerData) == 0 {
		t.Fatal("expected visualizer data in the artifact")
	}
}

func TestParseCommandRejectsUnknownFormat(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.cfg.CruiseDir(), hprRaw)
	testsupport.WriteFile(t, env.cfg, hprRaw, testsupport.HPRData(5, 0))

	if _, _, err := runCLI(t, []string{"parse", "--format", "nmea-unknown", path}, env.configPath); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestManifestCommandEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"manifest"}, env.configPath)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	requireContains(t, out, "has no entries")
}

func TestPreflightCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"preflight"}, env.configPath)
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	requireContains(t, out, "Warehouse directory")
	requireContains(t, out, "not written yet")
}

func TestTestNotifyDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("DDASH_NTFY_TOPIC", "")

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications disabled")
}
