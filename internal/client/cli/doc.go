// Package cli implements the qrctl commands: login with a QR token read
// without echo, then issue, show or revoke the caller's own QR login code.
// The session access token is kept in a private file between invocations.
package cli
