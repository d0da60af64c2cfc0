// Package protocol implements the binary settings protocol.
//
// A peer sends one command per frame; the Executor decodes it, runs it
// against a settings registry and writes zero or more response records to a
// ResponseWriter:
//
//	frame ──► Codec.Decode ──► Command ──► Registry ──► Codec.Encode ──► ResponseWriter
//
// Command frames (little-endian):
//
//	LIST, LIST_FULL, RESTORE      [type]
//	GET, GET_FULL                 [type][id:u16]
//	SET, SET_DEFAULT              [type][id:u16][len:u8][len bytes]
//	LIST_SOME, LIST_SOME_FULL     [type][count:u8][count × id:u16]
//
// Response records:
//
//	short  [id:u16][key][0x00][type:u8][value_len:u8][value]
//	full   short + [default_len:u8][default][max_size:u8]
//
// The executor does not retry and does not lock. Transports serialize calls,
// usually by running them on a settings.Queue, and map results to a status
// byte with StatusCode.
package protocol
