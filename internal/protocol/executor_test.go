package protocol

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// recordingWriter collects copies of every response frame.
type recordingWriter struct {
	frames  [][]byte
	failAt  int // 1-based frame number that fails; 0 never fails
	failErr error
}

func (w *recordingWriter) WriteResponse(_ context.Context, frame []byte) error {
	if w.failAt > 0 && len(w.frames)+1 == w.failAt {
		return w.failErr
	}
	w.frames = append(w.frames, bytes.Clone(frame))
	return nil
}

func (w *recordingWriter) ids(t *testing.T, full bool) []uint16 {
	t.Helper()
	out := make([]uint16, 0, len(w.frames))
	for _, f := range w.frames {
		rec, _, err := ParseRecord(f, full)
		require.NoError(t, err)
		out = append(out, rec.ID)
	}
	return out
}

func frame(t *testing.T, cmd Command) []byte {
	t.Helper()
	f, err := EncodeCommand(cmd)
	require.NoError(t, err)
	return f
}

func TestExecutor_Get(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	require.NoError(t, reg.SetValue(ctx, 1, []byte{1}))

	w := &recordingWriter{}
	exec := NewExecutor(reg, Binary{}, w)

	require.NoError(t, exec.ParseAndExecute(ctx, []byte{byte(CmdGet), 0x01, 0x00}))
	require.Len(t, w.frames, 1)
	assert.Equal(t, []byte{0x01, 0x00, 't', '1', 0x00, 0x00, 0x01, 0x01}, w.frames[0])

	err := exec.ParseAndExecute(ctx, []byte{byte(CmdGetFull), 0x63, 0x00})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, w.frames, 1)
}

func TestExecutor_List(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	w := &recordingWriter{}
	exec := NewExecutor(reg, nil, w)

	require.NoError(t, exec.ParseAndExecute(ctx, []byte{byte(CmdListFull)}))
	assert.Equal(t, []uint16{1, 2, 3, 4}, w.ids(t, true))
}

func TestExecutor_ListStopsOnWriteFailure(t *testing.T) {
	reg := newTestRegistry(t)
	sinkErr := errors.New("link down")
	w := &recordingWriter{failAt: 3, failErr: sinkErr}
	exec := NewExecutor(reg, Binary{}, w)

	err := exec.ParseAndExecute(context.Background(), []byte{byte(CmdList)})
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, []uint16{1, 2}, w.ids(t, false))
}

func TestExecutor_ListSomeAbortsOnMissingID(t *testing.T) {
	reg := settings.New(settings.NewMemoryStore())
	reg.Add(1, "t1", settings.TypeBool)
	require.NoError(t, reg.Load(context.Background()))

	w := &recordingWriter{}
	exec := NewExecutor(reg, Binary{}, w)

	cmd, err := NewListSomeCommand(false, 1, 2)
	require.NoError(t, err)

	err = exec.ParseAndExecute(context.Background(), frame(t, cmd))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []uint16{1}, w.ids(t, false))
}

func TestExecutor_ListSomeOrder(t *testing.T) {
	reg := newTestRegistry(t)
	w := &recordingWriter{}
	exec := NewExecutor(reg, Binary{}, w)

	cmd, err := NewListSomeCommand(true, 4, 1, 4)
	require.NoError(t, err)
	require.NoError(t, exec.ParseAndExecute(context.Background(), frame(t, cmd)))
	assert.Equal(t, []uint16{4, 1, 4}, w.ids(t, true))
}

func TestExecutor_Set(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	var fired []uint16
	reg.SetGlobalChangeFunc(func(id uint16, _ string) { fired = append(fired, id) })

	w := &recordingWriter{}
	exec := NewExecutor(reg, Binary{}, w)

	require.NoError(t, exec.ParseAndExecute(ctx, []byte{0x05, 0x02, 0x00, 0x02, 0xAA, 0xBB}))
	v, ok := reg.Value(2)
	require.True(t, ok)
	assert.Equal(t, []byte{0xAA, 0xBB}, v)
	assert.Equal(t, []uint16{2}, fired)
	assert.Empty(t, w.frames, "SET writes no response records")

	// Too large for a u16.
	err := exec.ParseAndExecute(ctx, []byte{0x05, 0x02, 0x00, 0x03, 0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.ErrorIs(t, err, settings.ErrValueTooLarge)

	err = exec.ParseAndExecute(ctx, []byte{0x05, 0x09, 0x00, 0x01, 0x01})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrOperationFailed)

	// value_len 0 stores an empty value; the padding byte is ignored.
	require.NoError(t, exec.ParseAndExecute(ctx, []byte{0x05, 0x03, 0x00, 0x00, 0xFF}))
	assert.True(t, reg.IsSet(3))
	assert.Equal(t, 0, lookup(t, reg, 3).ValueLen())
}

func TestExecutor_SetDefault(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	exec := NewExecutor(reg, Binary{}, &recordingWriter{})

	set, err := NewSetCommand(CmdSetDefault, 3, settings.EncodeStr("a"))
	require.NoError(t, err)
	require.NoError(t, exec.ParseAndExecute(ctx, frame(t, set)))
	require.NoError(t, exec.ParseAndExecute(ctx, frame(t, set)), "same default twice")

	other, err := NewSetCommand(CmdSetDefault, 3, settings.EncodeStr("b"))
	require.NoError(t, err)
	err = exec.ParseAndExecute(ctx, frame(t, other))
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.ErrorIs(t, err, settings.ErrAlreadySet)

	def, _ := reg.Default(3)
	assert.Equal(t, settings.EncodeStr("a"), def)
	assert.False(t, reg.IsSet(3))
}

func TestExecutor_RestoreAlwaysSucceeds(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	require.NoError(t, reg.SetDefault(ctx, 1, []byte{1}))
	require.NoError(t, reg.SetValue(ctx, 1, []byte{0}))
	require.NoError(t, reg.SetValue(ctx, 2, []byte{5, 0}))

	exec := NewExecutor(reg, Binary{}, &recordingWriter{})
	require.NoError(t, exec.ParseAndExecute(ctx, []byte{byte(CmdRestore)}))

	v, _ := reg.Value(1)
	assert.Equal(t, []byte{1}, v)
	v, _ = reg.Value(2)
	assert.Equal(t, []byte{5, 0}, v, "settings without a default keep their value")
}

func TestExecutor_DecodeErrorsPassThrough(t *testing.T) {
	reg := newTestRegistry(t)
	w := &recordingWriter{}
	exec := NewExecutor(reg, Binary{}, w)

	err := exec.ParseAndExecute(context.Background(), []byte{0x30})
	assert.ErrorIs(t, err, ErrUnsupportedCommand)
	err = exec.ParseAndExecute(context.Background(), nil)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Empty(t, w.frames)
}

func TestExecutor_ResponseBufferTooSmall(t *testing.T) {
	reg := newTestRegistry(t)
	w := &recordingWriter{}
	exec := NewExecutor(reg, Binary{}, w, WithResponseBufferSize(6))

	// "t1" needs 7 bytes when unset.
	err := exec.ParseAndExecute(context.Background(), []byte{byte(CmdGet), 0x01, 0x00})
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Empty(t, w.frames)
}

func TestExecutor_ResponseWriterFunc(t *testing.T) {
	reg := newTestRegistry(t)
	var got int
	exec := NewExecutor(reg, Binary{}, ResponseWriterFunc(func(context.Context, []byte) error {
		got++
		return nil
	}))
	require.NoError(t, exec.ParseAndExecute(context.Background(), []byte{byte(CmdList)}))
	assert.Equal(t, 4, got)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want byte
	}{
		{nil, StatusOK},
		{ErrNotFound, StatusNotFound},
		{ErrProtocol, StatusNotSupported},
		{ErrUnsupportedCommand, StatusNotSupported},
		{ErrIO, StatusFailed},
		{ErrBufferTooSmall, StatusFailed},
		{errors.Join(ErrOperationFailed, settings.ErrStorage), StatusFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), "StatusCode(%v)", tt.err)
	}
}
