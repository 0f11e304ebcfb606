// Package auth exchanges user credentials for a one-time socket token.
//
// The login endpoint accepts POST {"email": "...", "password": "..."} and
// answers with {"status": "Success", "token": "..."} or {"status": "Invalid"}.
// Tokens are single-use: every socket connection needs a fresh login.
package auth
