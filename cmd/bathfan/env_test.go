package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"broker":        "BATHFAN_BROKER",
		"max-run":       "BATHFAN_MAX_RUN",
		"print-reading": "BATHFAN_PRINT_READING",
	}
	for name, want := range tests {
		if got := envKey(name); got != want {
			t.Errorf("envKey(%q): got %q, want %q", name, got, want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	broker := set.String("broker", "", "")
	maxRun := set.Duration("max-run", time.Hour, "")
	short := set.Int("short", 4, "")

	env := map[string]string{
		"BATHFAN_BROKER":  "tcp://10.0.0.2:1883",
		"BATHFAN_MAX_RUN": "90m",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	if err := applyEnv(set, lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if *broker != "tcp://10.0.0.2:1883" {
		t.Errorf("broker: got %q", *broker)
	}
	if *maxRun != 90*time.Minute {
		t.Errorf("max-run: got %v, want 90m", *maxRun)
	}
	if *short != 4 {
		t.Errorf("short: got %d, want default 4", *short)
	}

	// Command-line flags still win.
	if err := set.Parse([]string{"-max-run", "10m"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if *maxRun != 10*time.Minute {
		t.Errorf("max-run after Parse: got %v, want 10m", *maxRun)
	}
}

func TestApplyEnvInvalidValue(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.Int("short", 4, "")

	lookup := func(k string) (string, bool) {
		if k == "BATHFAN_SHORT" {
			return "four", true
		}
		return "", false
	}
	if err := applyEnv(set, lookup); err == nil {
		t.Error("expected error for non-numeric BATHFAN_SHORT")
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "BATHFAN_TEST_LOAD_ENV_FILE"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), "bathfan.env")
	if err := os.WriteFile(path, []byte(key+"=tcp://broker:1883\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	if got := os.Getenv(key); got != "tcp://broker:1883" {
		t.Errorf("%s: got %q", key, got)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
	if err := loadEnvFile(""); err != nil {
		t.Errorf("empty path should be ignored, got %v", err)
	}
}
