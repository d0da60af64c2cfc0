package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// Record layout, all integers little-endian:
//
//	short: [id:u16][key][0x00][type:u8][value_len:u8][value]
//	full:  short + [default_len:u8][default][max_size:u8]
//
// An unset value or default is sent with length 0 and no bytes.
const (
	idSize       = 2
	shortFixed   = idSize + 1 + 1 + 1 // id, NUL, type, value_len
	fullSuffix   = 1 + 1              // default_len, max_size
	setHeaderLen = 1 + idSize + 1     // type, id, value_len
	getFrameLen  = 1 + idSize
)

// Binary is the byte-oriented codec used by the remote transports.
// It has no state; the zero value is ready to use.
type Binary struct{}

// Encode implements Codec.
func (Binary) Encode(s *settings.Setting, buf []byte) (int, error) { return Encode(s, buf) }

// EncodeFull implements Codec.
func (Binary) EncodeFull(s *settings.Setting, buf []byte) (int, error) { return EncodeFull(s, buf) }

// Decode implements Codec.
func (Binary) Decode(buf []byte, cmd *Command) (int, error) { return Decode(buf, cmd) }

// EncodedLen returns the size of the short encoding of s.
func EncodedLen(s *settings.Setting) int {
	return shortFixed + len(s.Key()) + s.ValueLen()
}

// EncodedFullLen returns the size of the full encoding of s.
func EncodedFullLen(s *settings.Setting) int {
	return EncodedLen(s) + fullSuffix + s.DefaultLen()
}

// Encode writes the short encoding of s into buf and returns the bytes written.
// If buf is too small nothing is written and ErrBufferTooSmall is returned.
func Encode(s *settings.Setting, buf []byte) (int, error) {
	need := EncodedLen(s)
	if len(buf) < need {
		return 0, fmt.Errorf("%w: %q needs %d bytes, have %d", ErrBufferTooSmall, s.Key(), need, len(buf))
	}
	return len(appendShort(buf[:0], s)), nil
}

// EncodeFull writes the full encoding of s into buf and returns the bytes written.
// The full size is checked before anything is written.
func EncodeFull(s *settings.Setting, buf []byte) (int, error) {
	need := EncodedFullLen(s)
	if len(buf) < need {
		return 0, fmt.Errorf("%w: %q needs %d bytes, have %d", ErrBufferTooSmall, s.Key(), need, len(buf))
	}
	out := appendShort(buf[:0], s)
	out = append(out, byte(s.DefaultLen()))
	out = s.AppendDefault(out)
	out = append(out, byte(s.MaxSize()))
	return len(out), nil
}

// appendShort appends into dst, which the callers size up front.
func appendShort(dst []byte, s *settings.Setting) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, s.ID())
	dst = append(dst, s.Key()...)
	dst = append(dst, 0, byte(s.Type()), byte(s.ValueLen()))
	return s.AppendValue(dst)
}

// Decode parses one command frame into cmd and returns the bytes consumed.
//
// cmd is zeroed first. Missing bytes are ErrProtocol and an unknown type
// byte is ErrUnsupportedCommand. Only SET and SET_DEFAULT tolerate bytes past
// the declared value; they are ignored. The whole frame counts as consumed.
func Decode(buf []byte, cmd *Command) (int, error) {
	*cmd = Command{}
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: empty frame", ErrProtocol)
	}

	typ := CommandType(buf[0])
	switch typ {
	case CmdList, CmdListFull, CmdRestore:
		if len(buf) != 1 {
			return 0, fmt.Errorf("%w: %s takes no arguments, got %d bytes", ErrProtocol, typ, len(buf))
		}

	case CmdGet, CmdGetFull:
		if len(buf) != getFrameLen {
			return 0, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrProtocol, typ, getFrameLen, len(buf))
		}
		cmd.ID = binary.LittleEndian.Uint16(buf[1:])

	case CmdSet, CmdSetDefault:
		if len(buf) < setHeaderLen+1 {
			return 0, fmt.Errorf("%w: %s needs at least %d bytes, got %d", ErrProtocol, typ, setHeaderLen+1, len(buf))
		}
		n := int(buf[3])
		if len(buf) < setHeaderLen+n {
			return 0, fmt.Errorf("%w: %s declares %d value bytes, frame carries %d",
				ErrProtocol, typ, n, len(buf)-setHeaderLen)
		}
		cmd.ID = binary.LittleEndian.Uint16(buf[1:])
		cmd.ValueLen = copy(cmd.Value[:], buf[setHeaderLen:setHeaderLen+n])

	case CmdListSome, CmdListSomeFull:
		if len(buf) < 2 {
			return 0, fmt.Errorf("%w: %s needs a count byte", ErrProtocol, typ)
		}
		n := int(buf[1]) * idSize
		if n > MaxValueLen || len(buf)-2 != n {
			return 0, fmt.Errorf("%w: %s declares %d ids, frame carries %d bytes",
				ErrProtocol, typ, buf[1], len(buf)-2)
		}
		cmd.ValueLen = copy(cmd.Value[:], buf[2:])

	default:
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnsupportedCommand, buf[0])
	}

	cmd.Type = typ
	return len(buf), nil
}

// EncodeCommand builds the frame for cmd. It is the inverse of Decode and
// is used by clients and tests.
func EncodeCommand(cmd Command) ([]byte, error) {
	switch cmd.Type {
	case CmdList, CmdListFull, CmdRestore:
		return []byte{byte(cmd.Type)}, nil

	case CmdGet, CmdGetFull:
		return binary.LittleEndian.AppendUint16([]byte{byte(cmd.Type)}, cmd.ID), nil

	case CmdSet, CmdSetDefault:
		if cmd.ValueLen < 1 || cmd.ValueLen > settings.MaxSettingSize {
			return nil, fmt.Errorf("%w: %s value must be 1..%d bytes, got %d",
				ErrProtocol, cmd.Type, settings.MaxSettingSize, cmd.ValueLen)
		}
		out := make([]byte, 0, setHeaderLen+cmd.ValueLen)
		out = append(out, byte(cmd.Type))
		out = binary.LittleEndian.AppendUint16(out, cmd.ID)
		out = append(out, byte(cmd.ValueLen))
		return append(out, cmd.Payload()...), nil

	case CmdListSome, CmdListSomeFull:
		if cmd.ValueLen%idSize != 0 || cmd.ValueLen > MaxValueLen {
			return nil, fmt.Errorf("%w: %s id list of %d bytes", ErrProtocol, cmd.Type, cmd.ValueLen)
		}
		out := make([]byte, 0, 2+cmd.ValueLen)
		out = append(out, byte(cmd.Type), byte(cmd.ValueLen/idSize))
		return append(out, cmd.Payload()...), nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedCommand, byte(cmd.Type))
	}
}

// NewSetCommand builds a SET or SET_DEFAULT command for id.
func NewSetCommand(typ CommandType, id uint16, data []byte) (Command, error) {
	if len(data) > MaxValueLen {
		return Command{}, fmt.Errorf("%w: value of %d bytes", ErrProtocol, len(data))
	}
	cmd := Command{Type: typ, ID: id}
	cmd.ValueLen = copy(cmd.Value[:], data)
	return cmd, nil
}

// NewListSomeCommand builds a LIST_SOME or LIST_SOME_FULL command for ids.
func NewListSomeCommand(full bool, ids ...uint16) (Command, error) {
	if len(ids)*idSize > MaxValueLen {
		return Command{}, fmt.Errorf("%w: %d ids exceed one frame", ErrProtocol, len(ids))
	}
	cmd := Command{Type: CmdListSome}
	if full {
		cmd.Type = CmdListSomeFull
	}
	for _, id := range ids {
		binary.LittleEndian.PutUint16(cmd.Value[cmd.ValueLen:], id)
		cmd.ValueLen += idSize
	}
	return cmd, nil
}

// ParseRecord decodes one encoded record from the start of buf and returns
// it with the number of bytes it occupied.
func ParseRecord(buf []byte, full bool) (Record, int, error) {
	var rec Record
	if len(buf) < idSize {
		return rec, 0, fmt.Errorf("%w: record shorter than its id", ErrProtocol)
	}
	rec.ID = binary.LittleEndian.Uint16(buf)
	pos := idSize

	nul := bytes.IndexByte(buf[pos:], 0)
	if nul < 0 {
		return rec, 0, fmt.Errorf("%w: unterminated key", ErrProtocol)
	}
	rec.Key = string(buf[pos : pos+nul])
	pos += nul + 1

	if len(buf) < pos+2 {
		return rec, 0, fmt.Errorf("%w: record truncated after key %q", ErrProtocol, rec.Key)
	}
	rec.Type = settings.Type(buf[pos])
	value, next, err := lengthPrefixed(buf, pos+1)
	if err != nil {
		return rec, 0, fmt.Errorf("%w: value of %q", err, rec.Key)
	}
	rec.Value = value
	pos = next

	if !full {
		return rec, pos, nil
	}

	def, next, err := lengthPrefixed(buf, pos)
	if err != nil {
		return rec, 0, fmt.Errorf("%w: default of %q", err, rec.Key)
	}
	rec.Default = def
	pos = next
	if len(buf) < pos+1 {
		return rec, 0, fmt.Errorf("%w: missing max size of %q", ErrProtocol, rec.Key)
	}
	rec.MaxSize = int(buf[pos])
	return rec, pos + 1, nil
}

// lengthPrefixed reads [len:u8][len bytes] at pos. A zero length yields nil.
func lengthPrefixed(buf []byte, pos int) ([]byte, int, error) {
	if len(buf) < pos+1 {
		return nil, 0, ErrProtocol
	}
	n := int(buf[pos])
	pos++
	if len(buf) < pos+n {
		return nil, 0, ErrProtocol
	}
	if n == 0 {
		return nil, pos, nil
	}
	return bytes.Clone(buf[pos : pos+n]), pos + n, nil
}
