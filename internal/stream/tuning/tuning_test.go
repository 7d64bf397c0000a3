package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	p := writeYAML(t, `
load_radius: 4
unload_radius: 6
shutdown_policy: discard
worker_pool:
  enabled: false
persistence:
  enabled: true
  path: /tmp/x.sqlite
`)
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.LoadRadius != 4 || tu.UnloadRadius != 6 || tu.ShutdownPolicy != "discard" {
		t.Fatalf("tuning=%+v", tu)
	}
	if tu.WorkerPool.Enabled {
		t.Fatalf("worker pool should be disabled")
	}
	if tu.TickRateHz != 20 || tu.IOPool.Workers != 2 {
		t.Fatalf("missing keys should keep defaults: %+v", tu)
	}
	if tu.TickInterval() != 50*time.Millisecond {
		t.Fatalf("tick interval=%s", tu.TickInterval())
	}
}

func TestLoad_RejectsOutOfRange(t *testing.T) {
	for name, body := range map[string]string{
		"negative radius": "load_radius: -1\n",
		"bad policy":      "shutdown_policy: later\n",
		"zero tick rate":  "tick_rate_hz: 0\n",
		"unload < load":   "load_radius: 9\nunload_radius: 3\n",
		"empty db path":   "persistence:\n  enabled: true\n  path: \"\"\n",
	} {
		if _, err := Load(writeYAML(t, body)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: err=%v want ErrInvalid", name, err)
		}
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	if _, err := Load(writeYAML(t, "load_radius: [\n")); err == nil || errors.Is(err, ErrInvalid) {
		t.Fatalf("err=%v", err)
	}
}

func TestWorkerCount(t *testing.T) {
	if n := (Pool{Workers: 3}).WorkerCount(); n != 3 {
		t.Fatalf("n=%d", n)
	}
	if n := (Pool{}).WorkerCount(); n < 1 {
		t.Fatalf("n=%d", n)
	}
}
