package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for qrctl.
//
// Fields:
//   - ServerEndpointAddr: host:port of the QR login gRPC endpoint.
//   - RequestTimeout: deadline applied to every RPC.
//   - SessionFile: where the access token from "qrctl login" is kept.
type Config struct {
	ServerEndpointAddr string
	RequestTimeout     time.Duration
	SessionFile        string
}

// userConfigDir is a test seam for os.UserConfigDir.
var userConfigDir = os.UserConfigDir

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RequestTimeout = 10 * time.Second
	c.SessionFile = defaultSessionFile()
}

func defaultSessionFile() string {
	dir, err := userConfigDir()
	if err != nil || dir == "" {
		return ".qrctl-session"
	}
	return filepath.Join(dir, "qrctl", "session")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
