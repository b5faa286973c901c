package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-alarmcorr/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALARMCORR_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Correlation.WindowSeconds != 30 || cfg.Correlation.AttachPolicy != "nearest" {
		t.Fatalf("unexpected defaults: %+v", cfg.Correlation)
	}
	priority, err := cfg.DomainPriority()
	if err != nil || len(priority) != 3 || priority[0] != models.DomainRAN {
		t.Fatalf("unexpected default priority %v, %v", priority, err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  httpAddress: ":9090"
correlation:
  windowSeconds: 45
  attachPolicy: all
  sweepInterval: 250ms
rootCause:
  domainPriority: [TRANSPORT, CORE, RAN]
scoring:
  weights:
    minor: 0.1
    major: 0.2
    critical: 0.4
    domainBonus: 0.2
    spreadBonus: 0.05
    cap: 0.95
`)
	t.Setenv("CORRELATION_WINDOW_SECONDS", "60")
	t.Setenv("ALARMCORR_MODEL_BASE_URL", "http://model:8000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Correlation.WindowSeconds != 60 {
		t.Fatalf("env override ignored: %d", cfg.Correlation.WindowSeconds)
	}
	if cfg.Correlation.AttachPolicy != "all" || cfg.Correlation.SweepInterval != 250*time.Millisecond {
		t.Fatalf("file values ignored: %+v", cfg.Correlation)
	}
	if cfg.Server.HTTPAddress != ":9090" || cfg.Server.Address != ":50051" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Scoring.Weights.Cap != 0.95 || cfg.Scoring.Model.BaseURL != "http://model:8000" || cfg.Scoring.Model.Timeout != 250*time.Millisecond {
		t.Fatalf("unexpected scoring config: %+v", cfg.Scoring)
	}
	priority, _ := cfg.DomainPriority()
	if priority[0] != models.DomainTransport {
		t.Fatalf("priority not loaded: %v", priority)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"zero window":      "correlation:\n  windowSeconds: 0\n",
		"bad policy":       "correlation:\n  attachPolicy: random\n",
		"unknown domain":   "rootCause:\n  domainPriority: [RAN, EDGE]\n",
		"duplicate domain": "rootCause:\n  domainPriority: [RAN, RAN]\n",
		"bad weight":       "scoring:\n  weights:\n    critical: 1.5\n",
		"slow model":       "scoring:\n  model:\n    baseURL: http://model:8000\n    timeout: 1s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadRejectsNonIntegerWindowEnv(t *testing.T) {
	t.Setenv("CORRELATION_WINDOW_SECONDS", "thirty")
	_, err := Load(writeConfig(t, "{}\n"))
	if err == nil || !strings.Contains(err.Error(), "CORRELATION_WINDOW_SECONDS") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
