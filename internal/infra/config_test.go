package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
database:
  path: "test.db"
providers:
  fetch_timeout_sec: 3
  binance:
    url: "https://example.com/ticker"
    enabled: true
aggregation:
  interval_sec: 15
maintenance:
  interval_hours: 12
  history_retention_days: 7
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.FetchTimeout() != 3*time.Second {
		t.Errorf("unexpected fetch timeout: %v", cfg.FetchTimeout())
	}
	if cfg.AggregationInterval() != 15*time.Second {
		t.Errorf("unexpected aggregation interval: %v", cfg.AggregationInterval())
	}
	if cfg.MaintenanceInterval() != 12*time.Hour {
		t.Errorf("unexpected maintenance interval: %v", cfg.MaintenanceInterval())
	}
	if cfg.HistoryRetention() != 7*24*time.Hour {
		t.Errorf("unexpected retention: %v", cfg.HistoryRetention())
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  binance:
    url: "https://example.com/ticker"
    enabled: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr, got %s", cfg.Server.Addr)
	}
	if cfg.AggregationInterval() != 10*time.Second {
		t.Errorf("expected default 10s interval, got %v", cfg.AggregationInterval())
	}
	if cfg.Maintenance.HistoryRetentionDays != 30 {
		t.Errorf("expected default 30d retention, got %d", cfg.Maintenance.HistoryRetentionDays)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
providers:
  binance:
    url: "https://example.com/ticker"
    enabled: true
`)

	t.Setenv("CRYPTO_SERVER_ADDR", ":7070")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("expected env override :7070, got %s", cfg.Server.Addr)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no providers enabled", `
providers:
  binance:
    enabled: false
`},
		{"bad binance url", `
providers:
  binance:
    url: "ftp://example.com"
    enabled: true
`},
		{"bad okx url", `
providers:
  okx:
    ws_url: "https://not-a-websocket"
    enabled: true
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
