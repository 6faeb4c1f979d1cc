package server

import (
	"fmt"
	"time"
)

// Config holds server configuration
type Config struct {
	// Network settings. An empty address disables that listener.
	HTTPAddr      string `yaml:"http_addr"`
	WebsocketPath string `yaml:"websocket_path"`
	QUICAddr      string `yaml:"quic_addr"`
	TLSCertFile   string `yaml:"tls_cert_file"`
	TLSKeyFile    string `yaml:"tls_key_file"`
	// AuthToken, when set, must be passed as the token query parameter of
	// websocket upgrades.
	AuthToken string `yaml:"auth_token"`

	MaxClients int `yaml:"max_clients"`

	// Loop settings
	TickInterval         time.Duration `yaml:"tick_interval"`
	MaxMessagesPerSecond int           `yaml:"max_messages_per_second"`
	BroadcastConcurrency int           `yaml:"broadcast_concurrency"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		HTTPAddr:             "127.0.0.1:8080",
		WebsocketPath:        "/ws",
		MaxClients:           10_000,
		TickInterval:         10 * time.Millisecond,
		MaxMessagesPerSecond: 240,
		BroadcastConcurrency: 64,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxClients <= 0:
		return fmt.Errorf("%w: max_clients must be positive", ErrInvalidConfig)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick_interval must be positive", ErrInvalidConfig)
	case c.HTTPAddr != "" && (c.WebsocketPath == "" || c.WebsocketPath[0] != '/'):
		return fmt.Errorf("%w: websocket_path must start with /", ErrInvalidConfig)
	case (c.TLSCertFile == "") != (c.TLSKeyFile == ""):
		return fmt.Errorf("%w: tls_cert_file and tls_key_file go together", ErrInvalidConfig)
	}
	return nil
}
