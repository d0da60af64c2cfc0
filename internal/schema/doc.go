// Package schema loads the settings a node declares from a file.
//
// A schema lists every setting once, with its id, key, type, max size and an
// optional default. The same structure can be written as YAML, TOML or JSON:
//
//	version: 1
//	settings:
//	  - id: 1
//	    key: t1
//	    type: bool
//	    default: true
//	  - id: 3
//	    key: name
//	    type: str
//	    max_size: 16        # includes the NUL terminator
//	    default: "bench"
//	  - id: 4
//	    key: key
//	    type: bytes
//	    max_size: 16
//	    default: "000102030405060708090a0b0c0d0e0f"
//
// Type names are the shell names (bool, u8 … i64, str, bytes); "string",
// "boolean" and C-style names like "uint16_t" are accepted as well.
//
// # Usage
//
//	s, err := schema.Load(cfg.Settings.Schema)
//	reg := settings.New(store)
//	s.Declare(reg)
//	reg.Load(ctx)
//	s.ApplyDefaults(ctx, reg)
package schema
