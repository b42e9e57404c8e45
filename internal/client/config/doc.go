// Package config loads runtime configuration for qrctl.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via -c, -config or
//     $QRLOGIN_CONFIG.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the QR login gRPC endpoint
//	-t int      request timeout (seconds)
//	-s string   session file path
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "request_timeout": "10s",
//	  "session_file": "/home/me/.config/qrctl/session"
//	}
package config
