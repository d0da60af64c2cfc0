// Package auth provides bearer token authentication for the settings API.
//
// Tokens are HS256-signed JWTs carrying a subject and a role. The role
// maps to a fixed set of permissions (read, write, restore); there are no
// user accounts and no database lookups, so a token is valid for as long
// as its signature and expiry hold.
//
// Tokens are minted offline with "glsettings token" using the same secret
// the daemon is configured with.
package auth
