// Package api provides the HTTP REST API and WebSocket server for a
// settings node.
//
// Routes (all under /api/v1):
//
//	GET    /health                    liveness, no auth
//	GET    /metrics                   runtime, hub and registry counters
//	GET    /settings                  every setting as a flat JSON object (?changed=true for changed only)
//	PATCH  /settings                  apply a flat JSON object of key → value
//	GET    /settings/{key}            one setting with type, default and flags
//	PUT    /settings/{key}            set the value from its text form
//	PUT    /settings/{key}/default    provision the default from its text form
//	POST   /settings/{key}/restore    restore one setting to its default
//	GET    /settings/{key}/history    recent change log entries
//	POST   /actions/restore           restore every setting to its default
//	POST   /actions/clear-changed     clear all change flags
//	GET    /ws                        WebSocket, channel "setting.changed"
//	                                  (?subscribe=setting.changed&key=a&key=b)
//
// {key} may also be a numeric setting id.
//
// When api.jwt.secret is set, every route except /health requires a bearer
// token minted by "glsettings token"; roles viewer, operator and admin gate
// reads, writes and restores. The WebSocket accepts the token as a "token"
// query parameter.
//
// Every registry access is submitted to the registry queue; handlers never
// touch the registry directly.
package api
