package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// CommandType is the first byte of every command frame.
type CommandType uint8

// Command types. The byte values are fixed by the wire format.
const (
	CmdGet          CommandType = 1
	CmdGetFull      CommandType = 2
	CmdList         CommandType = 3
	CmdListFull     CommandType = 4
	CmdSet          CommandType = 5
	CmdSetDefault   CommandType = 6
	CmdRestore      CommandType = 7
	CmdListSome     CommandType = 8
	CmdListSomeFull CommandType = 9
)

// MaxValueLen is the capacity of a command's value buffer.
const MaxValueLen = 256

var commandNames = map[CommandType]string{
	CmdGet:          "get",
	CmdGetFull:      "get_full",
	CmdList:         "list",
	CmdListFull:     "list_full",
	CmdSet:          "set",
	CmdSetDefault:   "set_default",
	CmdRestore:      "restore",
	CmdListSome:     "list_some",
	CmdListSomeFull: "list_some_full",
}

// String returns the command name used in logs and metrics.
func (c CommandType) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// Full reports whether responses to c use the full record encoding.
func (c CommandType) Full() bool {
	return c == CmdGetFull || c == CmdListFull || c == CmdListSomeFull
}

// Command is one decoded command frame.
//
// ID is used by GET, GET_FULL, SET and SET_DEFAULT. Value holds the SET
// payload or, for LIST_SOME, the packed little-endian ids. Fields a command
// does not use are zero.
type Command struct {
	Type     CommandType
	ID       uint16
	Value    [MaxValueLen]byte
	ValueLen int
}

// Payload returns the used part of the value buffer.
func (c *Command) Payload() []byte {
	return c.Value[:c.ValueLen]
}

// IDs returns the ids carried by a LIST_SOME or LIST_SOME_FULL command.
func (c *Command) IDs() []uint16 {
	ids := make([]uint16, 0, c.ValueLen/2)
	for i := 0; i+1 < c.ValueLen; i += 2 {
		ids = append(ids, binary.LittleEndian.Uint16(c.Value[i:]))
	}
	return ids
}

// Record is a decoded response record, as seen by a client.
// Default and MaxSize are only filled from the full encoding.
type Record struct {
	ID      uint16
	Key     string
	Type    settings.Type
	Value   []byte
	Default []byte
	MaxSize int
}
