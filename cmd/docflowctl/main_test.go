package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/docflow/internal/core/usecase"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func useMemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("BLOB_DRIVER", "localfs")
	t.Setenv("STORAGE_PATH", t.TempDir())
	t.Setenv("AI_PROVIDER", "none")
}

func TestValidateSweepArgs(t *testing.T) {
	for _, name := range append(usecase.SweepNames(), allSweeps) {
		if err := validateSweepArgs(sweepCmd, []string{name}); err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
	}
	bad := [][]string{nil, {"vacuum"}, {"cleanup", "usage"}}
	for _, args := range bad {
		if err := validateSweepArgs(sweepCmd, args); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestSweepAllPrintsOneReportPerSweep(t *testing.T) {
	useMemoryStore(t)

	out, err := runCommand(t, "sweep", "all")
	if err != nil {
		t.Fatalf("sweep all: %v", err)
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewBufferString(out))
	for scanner.Scan() {
		var report usecase.SweepReport
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			t.Fatalf("decode report %q: %v", scanner.Text(), err)
		}
		names = append(names, report.Sweep)
	}
	want := usecase.SweepNames()
	if len(names) != len(want) {
		t.Fatalf("expected %d reports, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("report %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestSeedCommandPrintsSummary(t *testing.T) {
	useMemoryStore(t)
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	seedYAML := `
tenants:
  - id: acme
    name: Acme Corp
    queues:
      - name: Archive
        type: folder
        folder_path: ` + t.TempDir() + `
`
	if err := os.WriteFile(seedPath, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	out, err := runCommand(t, "seed", seedPath)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if out != "created 1 tenants, 1 queues, 0 rules\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSeedCommandRejectsMissingFile(t *testing.T) {
	useMemoryStore(t)
	if _, err := runCommand(t, "seed", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing seed file")
	}
}
