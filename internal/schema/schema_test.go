package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

type warnLogger struct {
	nopLogger
	warns []string
}

func (l *warnLogger) Warn(msg string, _ ...any) { l.warns = append(l.warns, msg) }

func TestLoad_AllFormats(t *testing.T) {
	for _, name := range []string{"settings.yaml", "settings.toml", "settings.json"} {
		t.Run(name, func(t *testing.T) {
			s, err := Load(filepath.Join("testdata", name))
			require.NoError(t, err)
			require.Len(t, s.Settings, 5)

			want := []struct {
				id      uint16
				key     string
				typ     settings.Type
				maxSize int
				def     []byte
			}{
				{1, "t1", settings.TypeBool, 1, []byte{1}},
				{2, "t2", settings.TypeU16, 2, []byte{0x58, 0x02}},
				{3, "name", settings.TypeStr, 8, []byte("bench\x00")},
				{4, "blob", settings.TypeBytes, 4, []byte{0xAA, 0xBB}},
				{5, "offset", settings.TypeI16, 2, nil},
			}
			for i, w := range want {
				d := s.Settings[i]
				assert.Equal(t, w.id, d.ID)
				assert.Equal(t, w.key, d.Key)
				assert.Equal(t, w.typ, d.SettingType())
				assert.Equal(t, w.maxSize, d.MaxSize)

				def, ok := d.EncodedDefault()
				assert.Equal(t, w.def != nil, ok, "%s has default", w.key)
				assert.Equal(t, w.def, def, "%s default", w.key)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = Parse([]byte("version = 1"), ".ini")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Parse([]byte("version: 1\nsettings: []\ncolour: red\n"), ".yml")
	require.Error(t, err)

	_, err = Parse([]byte(`{"version":1,"settings":[],"extra":true}`), ".json")
	require.Error(t, err)

	_, err = Parse([]byte("version = 1\nextra = 2\n[[settings]]\nid = 1\nkey = \"a\"\ntype = \"u8\"\n"), ".toml")
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "extra")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		defs    []Definition
		version int
		wantErr string
	}{
		{
			name:    "bad version",
			version: 2,
			defs:    []Definition{{ID: 1, Key: "a", Type: "u8"}},
			wantErr: "version 2 is not supported",
		},
		{
			name:    "empty",
			version: 1,
			wantErr: "no settings declared",
		},
		{
			name:    "duplicate id",
			version: 1,
			defs:    []Definition{{ID: 1, Key: "a", Type: "u8"}, {ID: 1, Key: "b", Type: "u8"}},
			wantErr: "b: id 1 already used by a",
		},
		{
			name:    "duplicate key",
			version: 1,
			defs:    []Definition{{ID: 1, Key: "a", Type: "u8"}, {ID: 2, Key: "a", Type: "u8"}},
			wantErr: "a: duplicate key",
		},
		{
			name:    "missing key",
			version: 1,
			defs:    []Definition{{ID: 1, Type: "u8"}},
			wantErr: "settings[0]: key is required",
		},
		{
			name:    "unknown type",
			version: 1,
			defs:    []Definition{{ID: 1, Key: "a", Type: "float"}},
			wantErr: `a: unknown type "float"`,
		},
		{
			name:    "str without size",
			version: 1,
			defs:    []Definition{{ID: 1, Key: "a", Type: "str"}},
			wantErr: "a: str needs max_size between 1 and 255",
		},
		{
			name:    "fixed type with wrong size",
			version: 1,
			defs:    []Definition{{ID: 1, Key: "a", Type: "u32", MaxSize: 2}},
			wantErr: "a: u32 is 4 bytes, max_size 2 given",
		},
		{
			name:    "default out of range",
			version: 1,
			defs:    []Definition{{ID: 1, Key: "a", Type: "u8", Default: 300}},
			wantErr: "a: default:",
		},
		{
			name:    "default too long",
			version: 1,
			defs:    []Definition{{ID: 1, Key: "a", Type: "str", MaxSize: 3, Default: "abc"}},
			wantErr: "a: default is 4 bytes, max_size is 3",
		},
		{
			name:    "number for string",
			version: 1,
			defs:    []Definition{{ID: 1, Key: "a", Type: "str", MaxSize: 3, Default: 7}},
			wantErr: "number given for str",
		},
		{
			name:    "fractional number",
			version: 1,
			defs:    []Definition{{ID: 1, Key: "a", Type: "i32", Default: 1.5}},
			wantErr: "1.5 is not an integer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Schema{Version: tt.version, Settings: tt.defs}
			err := s.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	s := &Schema{Version: 1, Settings: []Definition{
		{ID: 1, Key: "a", Type: "nope"},
		{ID: 2, Key: "b", Type: "bytes"},
	}}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `a: unknown type "nope"`)
	assert.Contains(t, err.Error(), "b: bytes needs max_size")
}

func TestDeclareAndApplyDefaults(t *testing.T) {
	ctx := context.Background()
	s, err := Load(filepath.Join("testdata", "settings.yaml"))
	require.NoError(t, err)

	store := settings.NewMemoryStore()
	reg := settings.New(store)
	require.NoError(t, s.Declare(reg))
	require.Equal(t, 5, reg.Len())
	require.NoError(t, reg.Load(ctx))

	require.NoError(t, s.ApplyDefaults(ctx, reg))

	v, ok := reg.ValueByKey("t2")
	require.True(t, ok)
	assert.Equal(t, []byte{0x58, 0x02}, v)
	assert.False(t, reg.IsSetByKey("t2"), "defaults do not set the value")
	assert.False(t, reg.HasDefaultByKey("offset"))
	assert.Equal(t, settings.TypeI16, reg.TypeOfByKey("offset"))

	// Applying again is a no-op.
	require.NoError(t, s.ApplyDefaults(ctx, reg))
}

func TestApplyDefaults_StoredDefaultWins(t *testing.T) {
	ctx := context.Background()
	s, err := Load(filepath.Join("testdata", "settings.json"))
	require.NoError(t, err)

	store := settings.NewMemoryStore()
	require.NoError(t, store.WriteDefault(ctx, "t2", []byte{0x01, 0x00}))

	reg := settings.New(store)
	require.NoError(t, s.Declare(reg))
	require.NoError(t, reg.Load(ctx))

	logger := &warnLogger{}
	s.SetLogger(logger)
	require.NoError(t, s.ApplyDefaults(ctx, reg))

	def, _ := reg.DefaultByKey("t2")
	assert.Equal(t, []byte{0x01, 0x00}, def)
	assert.Equal(t, []string{"keeping stored default"}, logger.warns)
}

func TestApplyDefaults_Overwrite(t *testing.T) {
	ctx := context.Background()
	s, err := Load(filepath.Join("testdata", "settings.toml"))
	require.NoError(t, err)

	store := settings.NewMemoryStore()
	require.NoError(t, store.WriteDefault(ctx, "name", []byte("old\x00")))

	reg := settings.New(store, settings.WithDefaultPolicy(settings.DefaultOverwrite))
	require.NoError(t, s.Declare(reg))
	require.NoError(t, reg.Load(ctx))
	require.NoError(t, s.ApplyDefaults(ctx, reg))

	def, _ := reg.DefaultByKey("name")
	assert.Equal(t, []byte("bench\x00"), def)
}

func TestLoad_ShippedSchema(t *testing.T) {
	s, err := Load(filepath.Join("..", "..", "configs", "settings.yaml"))
	require.NoError(t, err)

	reg := settings.New(settings.NewMemoryStore())
	require.NoError(t, s.Declare(reg))
	require.NoError(t, reg.Load(context.Background()))
	require.NoError(t, s.ApplyDefaults(context.Background(), reg))

	v, ok := reg.ValueByKey("report_interval")
	require.True(t, ok)
	assert.Equal(t, []byte{0x58, 0x02}, v)
	assert.Equal(t, 32, reg.MaxLenByKey("device_name"))
	assert.False(t, reg.HasDefaultByKey("network_key"))
}
