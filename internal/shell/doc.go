// Package shell provides the operator command tree for a settings registry.
//
// The same commands back the glsettings CLI (mounted under its root command)
// and the daemon's interactive console (Serve, one line per command).
//
// Every setting is printed as
//
//	id: 2, key: "t2", value: 600, default: 300
//
// with "/" standing in for an unset value or default.
package shell
