package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRootCommandHasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()
	want := map[string]bool{"start": false, "stop": false, "exabgp": false, "lookup": false}
	for _, c := range root.Commands() {
		name := c.Name()
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected a %q subcommand", name)
		}
	}
}

func TestExecuteReturnsUsageErrorCodeForUnknownPID(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gixflow.yaml")
	pidPath := filepath.Join(dir, "does-not-exist.pid")

	yaml := "pid_file: " + pidPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("writing %s: %v", cfgPath, err)
	}

	code := Execute([]string{"stop", "--config", cfgPath})
	if code != 2 {
		t.Errorf("exit code = %d, want 2 for a missing pid file", code)
	}
}

func TestExecuteReturnsZeroForHelp(t *testing.T) {
	code := Execute([]string{"--help"})
	if code != 0 {
		t.Errorf("exit code = %d, want 0 for --help", code)
	}
}
