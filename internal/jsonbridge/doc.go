// Package jsonbridge converts between a settings registry and flat JSON
// objects of key → value, used by the shell's export and import commands.
package jsonbridge
