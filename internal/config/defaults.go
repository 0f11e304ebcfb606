package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL                = "ws://localhost:3333"
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultPingTimeout          = 90 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 1000
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 60 * time.Second
	DefaultReconnectFactor      = 2.0
	DefaultReconnectJitter      = 0.2
	DefaultLoginURL             = "http://localhost:3000/login"
	DefaultLoginTimeout         = 10 * time.Second
	DefaultRetryBackoff         = 500 * time.Millisecond
	DefaultGreeting             = "what's up?"
	DefaultGreetingDelay        = 500 * time.Millisecond
	DefaultQueueSize            = 256
	DefaultAuthAddr             = "127.0.0.1:3000"
	DefaultSocketAddr           = ":3333"
	DefaultSendRate             = 10
	DefaultAuthTimeout          = 10 * time.Second
	DefaultTokenMaxAge          = 60 * time.Second
	DefaultTokenCleanupInterval = 10 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultArchiveBatchSize     = 500
	DefaultArchiveFlushInterval = 1 * time.Second
)

// DefaultCounters are the counters the development server ticks.
var DefaultCounters = []string{"foo", "bar"}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// Connection defaults
	if c.Connection.URL == "" {
		c.Connection.URL = DefaultWSURL
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.ReconnectFactor == 0 {
		c.Connection.ReconnectFactor = DefaultReconnectFactor
	}
	if c.Connection.ReconnectJitter == 0 {
		c.Connection.ReconnectJitter = DefaultReconnectJitter
	}

	// Login defaults
	if c.Login.URL == "" {
		c.Login.URL = DefaultLoginURL
	}
	if c.Login.Timeout == 0 {
		c.Login.Timeout = DefaultLoginTimeout
	}
	if c.Login.RetryBackoff == 0 {
		c.Login.RetryBackoff = DefaultRetryBackoff
	}

	// Session defaults
	if c.Session.Greeting == "" {
		c.Session.Greeting = DefaultGreeting
	}
	if c.Session.GreetingDelay == 0 {
		c.Session.GreetingDelay = DefaultGreetingDelay
	}

	// Relay defaults
	if c.Relay.QueueSize == 0 {
		c.Relay.QueueSize = DefaultQueueSize
	}

	// Server defaults
	if c.Server.AuthAddr == "" {
		c.Server.AuthAddr = DefaultAuthAddr
	}
	if c.Server.SocketAddr == "" {
		c.Server.SocketAddr = DefaultSocketAddr
	}
	if len(c.Server.Counters) == 0 {
		c.Server.Counters = append([]string(nil), DefaultCounters...)
	}
	if c.Server.SendRate == 0 {
		c.Server.SendRate = DefaultSendRate
	}
	if c.Server.AuthTimeout == 0 {
		c.Server.AuthTimeout = DefaultAuthTimeout
	}
	if c.Server.TokenMaxAge == 0 {
		c.Server.TokenMaxAge = DefaultTokenMaxAge
	}
	if c.Server.TokenCleanupInterval == 0 {
		c.Server.TokenCleanupInterval = DefaultTokenCleanupInterval
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultArchiveFlushInterval
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
