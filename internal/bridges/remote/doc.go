// Package remote exposes a settings registry over MQTT.
//
// Peers publish binary command frames to glsettings/{node}/command. Each frame
// runs through a protocol.Executor on the registry queue; every response
// record goes to glsettings/{node}/response, followed by one JSON status
// message on glsettings/{node}/status:
//
//	{"command":"get","status":0,"timestamp":"2026-03-01T12:00:00Z"}
//	{"command":"get","status":10,"error":"protocol: setting not found: id 99",...}
//
// Status values are the protocol status bytes (0x00 ok, 0x06 unsupported or
// malformed, 0x0A not found, 0x0E failed).
//
// Every value change, whatever its source, is published as a short record on
// glsettings/{node}/changed and appended to the change log with the source
// that caused it. Publishes go through a circuit breaker so an unreachable
// broker does not hold the registry queue for a publish timeout per record.
package remote
