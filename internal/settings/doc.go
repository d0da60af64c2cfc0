// Package settings provides the typed setting registry for Gray Logic Settings.
//
// A registry holds a fixed set of named, typed, size-bounded settings. Each
// setting has a live value and an optional default provisioned once, a change
// flag for delta queries, and optional change callbacks. Values are written
// through to a Store before they become visible.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                            Registry                                │
//	│                                                                    │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌────────────────┐  │
//	│  │   Value engine   │   │   Record store   │   │  Typed values  │  │
//	│  │  (registry.go)   │──▶│    (list.go)     │   │  (values.go)   │  │
//	│  │                  │   │                  │   │                │  │
//	│  │ • set / default  │   │ • id/key unique  │   │ • LE encoding  │  │
//	│  │ • restore        │   │ • insert order   │   │ • text parsing │  │
//	│  │ • callbacks      │   │ • change flags   │   │                │  │
//	│  └────────┬─────────┘   └──────────────────┘   └────────────────┘  │
//	│           │                                                        │
//	└───────────│────────────────────────────────────────────────────────┘
//	            ▼
//	┌──────────────────────┐
//	│   Store (SQLite or   │
//	│   memory)            │
//	└──────────────────────┘
//
// # Key Types
//
//   - Registry: lifecycle, lookups and the value engine
//   - Setting: one registered setting (id, key, type, max size)
//   - Type: bool, u8..u64, i8..i64, str, bytes
//   - Store: persistence collaborator (SQLiteStore, MemoryStore)
//   - Queue: single worker that serializes registry access
//
// # Usage
//
//	reg := settings.New(settings.NewSQLiteStore(db.DB))
//	reg.Add(1, "led_on", settings.TypeBool)
//	reg.AddSized(2, "device_name", settings.TypeStr, 32)
//
//	if err := reg.Load(ctx); err != nil {
//	    return err
//	}
//
//	reg.SetChangeFuncByKey("led_on", func(id uint16, key string) {
//	    log.Info("setting changed", "key", key)
//	})
//	err := reg.SetValueByKey(ctx, "led_on", settings.EncodeBool(true))
//
// # Preconditions
//
// Entry points that take an id or key panic when it is not registered, as do
// duplicate registration and registration after Load. Input that comes from
// outside the process must be checked first with Lookup, LookupKey, Exists
// or ExistsKey.
//
// # Thread Safety
//
// A Registry is not safe for concurrent use. Run every call, and therefore
// every callback, on one goroutine, normally through a Queue.
package settings
