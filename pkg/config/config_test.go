package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var errTooSmall = errors.New("window too small")

type sampleConfig struct {
	Window  int           `envconfig:"WINDOW" default:"20"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
	Name    string        `envconfig:"NAME"`
}

func (c *sampleConfig) Validate() error {
	if c.Window < 2 {
		return errTooSmall
	}
	return nil
}

func TestNewParsesPrefixedEnvironment(t *testing.T) {
	t.Setenv("SAMPLE_WINDOW", "7")
	t.Setenv("SAMPLE_NAME", "listing")

	cfg, err := New[sampleConfig]("SAMPLE")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Window != 7 || cfg.Name != "listing" || cfg.Timeout != 5*time.Second {
		t.Fatalf("New() = %+v", cfg)
	}
}

func TestNewRunsValidate(t *testing.T) {
	t.Setenv("CHECKED_WINDOW", "1")

	_, err := New[sampleConfig]("CHECKED")
	if !errors.Is(err, errTooSmall) {
		t.Fatalf("New() error = %v, want errTooSmall", err)
	}
}

func TestExportEnvironmentFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("FILECFG_NAME=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("FILECFG_NAME") })

	if err := exportEnvironmentIfExists(path); err != nil {
		t.Fatalf("exportEnvironmentIfExists() error = %v", err)
	}
	if got := os.Getenv("FILECFG_NAME"); got != "from-file" {
		t.Fatalf("FILECFG_NAME = %q", got)
	}
	if err := exportEnvironmentIfExists(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file error = %v, want nil", err)
	}
}

func TestEnvFileFromArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-env", "prod.env", "-listing", "x.json"}, "prod.env"},
		{[]string{"--env=dev.env"}, "dev.env"},
		{[]string{"-env=dev.env", "-say", "hello"}, "dev.env"},
		{[]string{"-conversation", "c-1", "--env", "staging.env"}, "staging.env"},
		{[]string{"-env", "a.env", "-help"}, "a.env"},
		{[]string{"-listing", "x.json"}, ""},
		{[]string{"--", "-env", "ignored.env"}, ""},
		{[]string{"-env"}, ""},
	}
	for _, tt := range tests {
		if got := envFileFromArgs(tt.args); got != tt.want {
			t.Fatalf("envFileFromArgs(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
