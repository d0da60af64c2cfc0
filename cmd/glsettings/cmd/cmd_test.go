package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-settings/internal/bridges/remote"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-settings/internal/protocol"
	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{"03", []byte{0x03}, false},
		{"01 02 00", []byte{0x01, 0x02, 0x00}, false},
		{"0x050100", []byte{0x05, 0x01, 0x00}, false},
		{"", nil, true},
		{"0", nil, true},
		{"zz", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFrame(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFrame(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("parseFrame(%q) = %x, want %x", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("0x10"); err != nil || id != 16 {
		t.Errorf("parseID(0x10) = %d, %v", id, err)
	}
	if _, err := parseID("70000"); err == nil {
		t.Error("parseID(70000) should fail")
	}
}

func TestFormatRecord(t *testing.T) {
	rec := protocol.Record{ID: 3, Key: "name", Type: settings.TypeStr, Value: []byte("hi"), MaxSize: 8}
	if got := formatRecord(rec, false); got != `id: 3, key: "name", type: str, value: "hi"` {
		t.Errorf("formatRecord() = %q", got)
	}
	if got := formatRecord(rec, true); got != `id: 3, key: "name", type: str, value: "hi", default: /, max size: 8` {
		t.Errorf("formatRecord(full) = %q", got)
	}
}

// fakeClient answers every command with the configured records and status.
type fakeClient struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
	sent     []byte
	records  [][]byte
	status   *remote.StatusMessage
}

func (f *fakeClient) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.handlers[topic] = h
	return nil
}

func (f *fakeClient) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeClient) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	f.sent = bytes.Clone(payload)
	resp := f.handlers[mqtt.Topics{}.Response("bench")]
	status := f.handlers[mqtt.Topics{}.Status("bench")]
	f.mu.Unlock()

	if topic != (mqtt.Topics{}).Command("bench") {
		return errors.New("unexpected topic " + topic)
	}
	go func() {
		for _, r := range f.records {
			_ = resp("", r) //nolint:errcheck // fake
		}
		if f.status != nil {
			data, _ := json.Marshal(f.status) //nolint:errcheck // fake
			_ = status("", data)              //nolint:errcheck // fake
		}
	}()
	return nil
}

func TestExchange(t *testing.T) {
	record := []byte{0x01, 0x00, 't', '1', 0x00, 0x00, 0x01, 0x01}
	client := &fakeClient{
		records: [][]byte{record},
		status:  &remote.StatusMessage{Command: "get", Status: protocol.StatusOK},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out bytes.Buffer
	status, err := exchange(ctx, client, "bench", 1, []byte{0x01, 0x01, 0x00}, &out)
	if err != nil {
		t.Fatalf("exchange() error = %v", err)
	}
	if status != protocol.StatusOK {
		t.Errorf("status = 0x%02x", status)
	}
	want := "id: 1, key: \"t1\", type: bool, value: true\nstatus: 0x00\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if !bytes.Equal(client.sent, []byte{0x01, 0x01, 0x00}) {
		t.Errorf("sent = %x", client.sent)
	}
	if len(client.handlers) != 0 {
		t.Errorf("%d subscriptions left behind", len(client.handlers))
	}
}

func TestExchange_ErrorStatus(t *testing.T) {
	client := &fakeClient{
		status: &remote.StatusMessage{Command: "get", Status: protocol.StatusNotFound, Error: "not found"},
	}

	var out bytes.Buffer
	status, err := exchange(context.Background(), client, "bench", 1, []byte{0x01, 0x63, 0x00}, &out)
	if err != nil {
		t.Fatalf("exchange() error = %v", err)
	}
	if status != protocol.StatusNotFound {
		t.Errorf("status = 0x%02x, want 0x0a", status)
	}
	if !strings.Contains(out.String(), "status: 0x0a (not found)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExchange_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := exchange(ctx, &fakeClient{}, "bench", 1, []byte{0x03}, &bytes.Buffer{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("exchange() error = %v, want deadline exceeded", err)
	}
}

func TestLoadConfig_FallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GLSETTINGS_CONFIG", "")
	cfgFile = ""

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Node.ID == "" {
		t.Error("default config should carry a node id")
	}

	cfgFile = "missing.yaml"
	defer func() { cfgFile = "" }()
	if _, err := loadConfig(); err == nil {
		t.Error("an explicit missing config should fail")
	}
}

func TestLocal(t *testing.T) {
	dir := t.TempDir()
	schemaPath, err := filepath.Abs(filepath.Join("..", "..", "..", "internal", "schema", "testdata", "settings.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	content := "node:\n  id: bench\n" +
		"settings:\n  schema: \"" + schemaPath + "\"\n" +
		"database:\n  path: \"" + filepath.Join(dir, "settings.db") + "\"\n" +
		"mqtt:\n  enabled: false\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgFile = configPath
	defer func() { cfgFile = "" }()

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append([]string{"local"}, args...))
		defer rootCmd.SetOut(nil)
		if err := rootCmd.ExecuteContext(context.Background()); err != nil {
			t.Fatalf("local %v error = %v", args, err)
		}
		return out.String()
	}

	run("set", "t2", "42")
	if got := run("get", "t2"); strings.TrimSpace(got) != `id: 2, key: "t2", value: 42, default: 600` {
		t.Errorf("get t2 = %q", got)
	}
	if got := run("history", "t2"); !strings.Contains(got, settings.ChangeSourceShell+"    t2") {
		t.Errorf("history t2 = %q", got)
	}
	if got := run("set", "offset", "-5"); strings.TrimSpace(got) != `id: 5, key: "offset", value: -5, default: /` {
		t.Errorf("set offset -5 = %q", got)
	}
}
