package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ddash/internal/config"
)

// WriteFile writes data below the cruise directory of cfg, creating parent
// directories, and returns the absolute path.
func WriteFile(t testing.TB, cfg *config.Config, rel string, data []byte) string {
	t.Helper()

	path := filepath.Join(cfg.CruiseDir(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// HPRLine formats one SCS heading/pitch/roll record sec seconds after
// 2016-08-29 12:00:00 UTC.
func HPRLine(sec int, heading, pitch, roll float64) string {
	return fmt.Sprintf("08/29/2016,%02d:%02d:%02d.000,$PSHPR,%.2f,%.2f,%.2f*3C",
		12+sec/3600, (sec/60)%60, sec%60, heading, pitch, roll)
}

// HPRData returns valid records one second apart, followed by rejected
// lines: every second one carries an out-of-range heading, the rest are
// malformed.
func HPRData(valid, rejected int) []byte {
	lines := make([]string, 0, valid+rejected)
	for i := 0; i < valid; i++ {
		lines = append(lines, HPRLine(i, float64(10+i%300), 1.5, -0.5))
	}
	for i := 0; i < rejected; i++ {
		if i%2 == 0 {
			lines = append(lines, HPRLine(valid+i, 370, 0, 0))
			continue
		}
		lines = append(lines, "08/29/2016,12:59:59.000,$PSHPR,bad,0,0*00")
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

// GGAData returns valid GPS fix records one second apart.
func GGAData(valid int) []byte {
	lines := make([]string, 0, valid)
	for i := 0; i < valid; i++ {
		lines = append(lines, fmt.Sprintf("08/29/2016,12:%02d:%02d.000,$GPGGA,120000.00,2130.1234,N,15750.5678,W,2,09,0.9,12.3,M,2.1,M,,*4A",
			(i/60)%60, i%60))
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}
