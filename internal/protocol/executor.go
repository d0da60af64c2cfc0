package protocol

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// defaultResponseBufferSize fits any record with a short key and a full-size value.
const defaultResponseBufferSize = 256

// Registry is the part of *settings.Registry the executor uses.
type Registry interface {
	Lookup(id uint16) (*settings.Setting, bool)
	All() iter.Seq[*settings.Setting]
	SetValue(ctx context.Context, id uint16, data []byte) error
	SetDefault(ctx context.Context, id uint16, data []byte) error
	RestoreDefaults(ctx context.Context) error
}

// Codec turns records into response frames and command frames into commands.
// Binary is the only implementation today.
type Codec interface {
	Encode(s *settings.Setting, buf []byte) (int, error)
	EncodeFull(s *settings.Setting, buf []byte) (int, error)
	Decode(buf []byte, cmd *Command) (int, error)
}

// ResponseWriter receives response frames.
//
// The slice is only valid during the call: the executor reuses it for the
// next record, so implementations must send or copy it before returning.
type ResponseWriter interface {
	WriteResponse(ctx context.Context, frame []byte) error
}

// ResponseWriterFunc adapts a function to ResponseWriter.
type ResponseWriterFunc func(ctx context.Context, frame []byte) error

// WriteResponse calls f.
func (f ResponseWriterFunc) WriteResponse(ctx context.Context, frame []byte) error {
	return f(ctx, frame)
}

// Executor decodes command frames, runs them against a registry and writes
// the response records.
//
// It keeps no state between calls apart from its reusable response buffer,
// so one Executor must not be used from two goroutines at once.
type Executor struct {
	reg    Registry
	codec  Codec
	sink   ResponseWriter
	buf    []byte
	logger settings.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithResponseBufferSize sets the size of the response buffer.
// Records that do not fit fail with ErrBufferTooSmall.
func WithResponseBufferSize(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.buf = make([]byte, n)
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(l settings.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor. A nil codec uses Binary.
func NewExecutor(reg Registry, codec Codec, sink ResponseWriter, opts ...ExecutorOption) *Executor {
	if codec == nil {
		codec = Binary{}
	}
	e := &Executor{
		reg:    reg,
		codec:  codec,
		sink:   sink,
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.buf == nil {
		e.buf = make([]byte, defaultResponseBufferSize)
	}
	return e
}

// ParseAndExecute runs one command frame.
//
// Decode errors are returned as is and nothing is executed. Commands that
// produce several records (LIST, LIST_SOME) stop at the first failure;
// records already written stay written.
func (e *Executor) ParseAndExecute(ctx context.Context, frame []byte) error {
	var cmd Command
	if _, err := e.codec.Decode(frame, &cmd); err != nil {
		e.logger.Warn("rejected command frame", "size", len(frame), "error", err)
		return err
	}

	e.logger.Debug("executing command", "command", cmd.Type.String(), "id", cmd.ID)
	err := e.execute(ctx, &cmd)
	if err != nil {
		e.logger.Warn("command failed", "command", cmd.Type.String(), "id", cmd.ID, "error", err)
	}
	return err
}

func (e *Executor) execute(ctx context.Context, cmd *Command) error {
	full := cmd.Type.Full()

	switch cmd.Type {
	case CmdGet, CmdGetFull:
		return e.get(ctx, cmd.ID, full)

	case CmdList, CmdListFull:
		for s := range e.reg.All() {
			if err := e.write(ctx, s, full); err != nil {
				return err
			}
		}
		return nil

	case CmdSet, CmdSetDefault:
		if _, ok := e.reg.Lookup(cmd.ID); !ok {
			return fmt.Errorf("%w: id %d", ErrNotFound, cmd.ID)
		}
		set := e.reg.SetValue
		if cmd.Type == CmdSetDefault {
			set = e.reg.SetDefault
		}
		if err := set(ctx, cmd.ID, cmd.Payload()); err != nil {
			return fmt.Errorf("%w: %s id %d: %w", ErrOperationFailed, cmd.Type, cmd.ID, err)
		}
		return nil

	case CmdRestore:
		// Missing defaults and per-setting failures are not reported to the peer.
		if err := e.reg.RestoreDefaults(ctx); err != nil {
			e.logger.Warn("restore defaults incomplete", "error", err)
		}
		return nil

	case CmdListSome, CmdListSomeFull:
		for _, id := range cmd.IDs() {
			if err := e.get(ctx, id, full); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd.Type)
	}
}

func (e *Executor) get(ctx context.Context, id uint16, full bool) error {
	s, ok := e.reg.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return e.write(ctx, s, full)
}

// write encodes s into the response buffer and hands it to the sink.
func (e *Executor) write(ctx context.Context, s *settings.Setting, full bool) error {
	encode := e.codec.Encode
	if full {
		encode = e.codec.EncodeFull
	}
	n, err := encode(s, e.buf)
	if err != nil {
		if errors.Is(err, ErrBufferTooSmall) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrBufferTooSmall, err)
	}
	if err := e.sink.WriteResponse(ctx, e.buf[:n]); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
