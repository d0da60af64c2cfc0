package shell

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

func TestServe(t *testing.T) {
	reg := newTestRegistry(t)
	sh := New(reg)
	q := settings.NewQueue(4)
	defer q.Close()

	in := strings.NewReader("set t2 9\n\nget nope\nrestore-one t2\nexit\nset t2 1\n")
	var out bytes.Buffer

	var sources []string
	wrap := func(ctx context.Context, args []string, run func(context.Context) error) error {
		sources = append(sources, Source(args))
		return run(ctx)
	}

	if err := sh.Serve(context.Background(), in, &out, q, wrap); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	text := out.String()
	if !strings.Contains(text, `id: 2, key: "t2", value: 9, default: 300`) {
		t.Errorf("missing set output in %q", text)
	}
	if !strings.Contains(text, "error: shell: setting with this key not found: nope") {
		t.Errorf("missing error line in %q", text)
	}
	if v, _ := reg.ValueByKey("t2"); !bytes.Equal(v, []byte{0x2C, 0x01}) {
		t.Errorf("t2 = %x, lines after exit must not run", v)
	}

	want := []string{settings.ChangeSourceShell, settings.ChangeSourceShell, settings.ChangeSourceRestore}
	if strings.Join(sources, ",") != strings.Join(want, ",") {
		t.Errorf("sources = %v, want %v", sources, want)
	}
}

func TestServe_CancelledContext(t *testing.T) {
	sh := New(newTestRegistry(t))
	q := settings.NewQueue(1)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sh.Serve(ctx, strings.NewReader("list\n"), &bytes.Buffer{}, q, nil)
	if err != context.Canceled {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
}

func TestServe_KeepsValueSpacing(t *testing.T) {
	reg := newTestRegistry(t)
	q := settings.NewQueue(4)
	defer q.Close()

	in := strings.NewReader("set name a  b\nset t2 \"7\nset-default name -x\n")
	var out bytes.Buffer
	if err := New(reg).Serve(context.Background(), in, &out, q, nil); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	if v, _ := reg.ValueByKey("name"); string(v) != "a  b" {
		t.Errorf("name = %q, want %q", v, "a  b")
	}
	if d, _ := reg.DefaultByKey("name"); string(d) != "-x" {
		t.Errorf("name default = %q, want %q", d, "-x")
	}
	if !strings.Contains(out.String(), "error: shell: unterminated quote") {
		t.Errorf("missing quote error in %q", out.String())
	}
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"", nil},
		{"  list  ", []string{"list"}},
		{"get\tt2", []string{"get", "t2"}},
		{`set name "a  b"`, []string{"set", "name", "a  b"}},
		{`set name "say \"hi\""`, []string{"set", "name", `say "hi"`}},
		{"set name  one   two ", []string{"set", "name", "one   two"}},
		{"set-default offset -1", []string{"set-default", "offset", "-1"}},
		{`import "my file.json" --mark-changed`, []string{"import", "my file.json", "--mark-changed"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := splitLine(tt.line)
			if err != nil {
				t.Fatalf("splitLine(%q) error = %v", tt.line, err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("splitLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}

	if _, err := splitLine(`set name "open`); err == nil {
		t.Error("unterminated quote should fail")
	}
}

func TestSource(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, settings.ChangeSourceShell},
		{[]string{"set", "a", "1"}, settings.ChangeSourceShell},
		{[]string{"import", "x.json"}, settings.ChangeSourceJSON},
		{[]string{"restore"}, settings.ChangeSourceRestore},
		{[]string{"restore-one", "a"}, settings.ChangeSourceRestore},
	}
	for _, tt := range tests {
		if got := Source(tt.args); got != tt.want {
			t.Errorf("Source(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
