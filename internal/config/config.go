package config

import "time"

// Config is the root configuration shared by the relay client and the
// development server.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Login      LoginConfig      `yaml:"login"`
	Session    SessionConfig    `yaml:"session"`
	Relay      RelayConfig      `yaml:"relay"`
	Server     ServerConfig     `yaml:"server"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

// ConnectionConfig holds WebSocket connection manager settings.
type ConnectionConfig struct {
	URL                string        `yaml:"url"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ReconnectFactor    float64       `yaml:"reconnect_factor"`
	ReconnectJitter    float64       `yaml:"reconnect_jitter"` // Fraction of each delay, 0 to 1
	MaxAttempts        int           `yaml:"max_attempts"`     // 0 = unlimited
}

// LoginConfig holds login endpoint settings and credentials.
type LoginConfig struct {
	URL          string        `yaml:"url"`
	Email        string        `yaml:"email"`
	Password     string        `yaml:"password"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// SessionConfig controls what happens after a socket authenticates.
type SessionConfig struct {
	Greeting        string        `yaml:"greeting"`
	GreetingDelay   time.Duration `yaml:"greeting_delay"`
	DisableGreeting bool          `yaml:"disable_greeting"`
}

// RelayConfig holds event relay settings.
type RelayConfig struct {
	QueueSize int `yaml:"queue_size"` // Initial per-subscriber queue capacity
}

// ServerConfig holds development server settings.
type ServerConfig struct {
	AuthAddr             string            `yaml:"auth_addr"`
	SocketAddr           string            `yaml:"socket_addr"`
	Counters             []string          `yaml:"counters"`
	SendRate             int               `yaml:"send_rate"` // Counter checks per second
	AuthTimeout          time.Duration     `yaml:"auth_timeout"`
	TokenMaxAge          time.Duration     `yaml:"token_max_age"`
	TokenCleanupInterval time.Duration     `yaml:"token_cleanup_interval"`
	Accounts             map[string]string `yaml:"accounts"` // email -> password; empty accepts everyone
}

// ArchiveConfig controls the optional PostgreSQL event archive.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection config.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
