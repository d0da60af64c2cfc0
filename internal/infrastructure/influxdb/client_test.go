package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and collects line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu     sync.Mutex
	lines  []string
	status int // write response, 204 unless set
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{status: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
			f.mu.Lock()
			f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			status := f.status
			f.mu.Unlock()
			if status != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = io.WriteString(w, `{"code":"invalid","message":"bad point"}`) //nolint:errcheck // test server
				return
			}
			w.WriteHeader(status)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.URL,
		Token:         "glsettings-dev-token",
		Org:           "glsettings",
		Bucket:        "settings",
		BatchSize:     1,
		FlushInterval: 1,
	}
}

// waitForLines polls until n lines arrived.
func (f *fakeInflux) waitForLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		got := append([]string(nil), f.lines...)
		f.mu.Unlock()
		if len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines", n)
	return nil
}

func TestConnect_Disabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}
	if _, err := influxdb.Connect(cfg, "bench-7"); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	f.Close()

	if _, err := influxdb.Connect(cfg, "bench-7"); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.BatchSize, cfg.FlushInterval = 0, 0

	client, err := influxdb.Connect(cfg, "bench-7")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestZeroClient(t *testing.T) {
	var client influxdb.Client

	// Writes on an unconnected client are dropped.
	client.WriteSettingChange(1, "t1", "bool", 1)
	client.WriteCommand("list", 0, time.Millisecond)
	client.Flush()

	if client.IsConnected() {
		t.Error("IsConnected() = true for zero client")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWriteSettingChange(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(f.config(), "bench-7")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteSettingChange(3, "name", "str", 5)
	client.Flush()

	line := f.waitForLines(t, 1)[0]
	for _, want := range []string{"setting_change,", "id=3", "key=name", "node=bench-7", "type=str", "size=5i"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteCommand(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(f.config(), "")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteCommand("list_some", 0x0A, 250*time.Microsecond)
	client.Flush()

	line := f.waitForLines(t, 1)[0]
	for _, want := range []string{"settings_command,", "command=list_some", "status=10", "duration_us=250i", "ok=false"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "node=") {
		t.Errorf("line %q has a node tag without a node id", line)
	}
}

func TestOnError(t *testing.T) {
	f := newFakeInflux(t)
	f.status = http.StatusBadRequest

	client, err := influxdb.Connect(f.config(), "bench-7")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errs := make(chan error, 4)
	client.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	client.WriteCommand("get", 0, time.Millisecond)
	client.Flush()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected a write error")
		}
	case <-time.After(3 * time.Second):
		t.Error("write error not reported")
	}
}

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(f.config(), "bench-7")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v", err)
	}
}
