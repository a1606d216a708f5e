// Package auth verifies the bearer tokens presented to the HTTP API and
// the WebSocket endpoint.
//
// Tokens are HS256 JWTs carrying a subject and a role. Issuing tokens for
// real users belongs to an external login service; GenerateAccessToken
// exists for tooling and tests that need a token signed with the shared
// secret.
package auth
