// Package client talks to the QR login gRPC service on behalf of qrctl.
//
// GRPCClient owns the connection, attaches the session access token to every
// call through a unary interceptor and maps gRPC status codes to sentinel
// errors that callers match with errors.Is:
//
//   - Unauthenticated, PermissionDenied: ErrUnauthorized (the server message
//     is kept in the error text)
//   - NotFound: ErrNotFound
//   - AlreadyExists: common.ErrActiveCodeExists
//   - Aborted: common.ErrConflict
//   - Unavailable, DeadlineExceeded: ErrUnavailable
package client
