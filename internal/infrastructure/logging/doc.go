// Package logging builds the log/slog logger shared by glsettingsd and the
// glsettings CLI.
//
// Every entry carries service=glsettings and the build version. The
// logging section of config.yaml picks the level (debug, info, warn,
// error), the format (json, or text for a terminal) and the stream
// (stdout or stderr):
//
//	logging:
//	  level: "info"
//	  format: "json"
//	  output: "stdout"
//
// Components take a child logger:
//
//	log := logging.New(cfg.Logging, version)
//	reg.SetLogger(log.With("component", "registry"))
//
// Log setting ids, keys and sizes. Never log the values of secrets.
package logging
