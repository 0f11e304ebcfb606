package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("connection.url", c.Connection.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Connection.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}
	if c.Connection.PingTimeout <= c.Connection.PingInterval {
		return fmt.Errorf("connection.ping_timeout (%v) must exceed ping_interval (%v)",
			c.Connection.PingTimeout, c.Connection.PingInterval)
	}
	if c.Connection.ReconnectFactor < 1 {
		return errors.New("connection.reconnect_factor must be >= 1")
	}
	if c.Connection.ReconnectJitter < 0 || c.Connection.ReconnectJitter > 1 {
		return fmt.Errorf("connection.reconnect_jitter must be between 0 and 1, got %v", c.Connection.ReconnectJitter)
	}
	if c.Connection.ReconnectMaxDelay < c.Connection.ReconnectBaseDelay {
		return fmt.Errorf("connection.reconnect_max_delay (%v) cannot be less than reconnect_base_delay (%v)",
			c.Connection.ReconnectMaxDelay, c.Connection.ReconnectBaseDelay)
	}
	if c.Connection.MaxAttempts < 0 {
		return errors.New("connection.max_attempts must be >= 0")
	}

	if err := validateURL("login.url", c.Login.URL, "http", "https"); err != nil {
		return err
	}
	if c.Login.Timeout <= 0 {
		return fmt.Errorf("login.timeout must be > 0, got %v", c.Login.Timeout)
	}
	if c.Login.MaxRetries < 0 {
		return errors.New("login.max_retries must be >= 0")
	}
	if c.Login.RetryBackoff < 0 {
		return fmt.Errorf("login.retry_backoff must be >= 0, got %v", c.Login.RetryBackoff)
	}

	if c.Session.GreetingDelay < 0 {
		return errors.New("session.greeting_delay must be >= 0")
	}

	if c.Relay.QueueSize < 1 {
		return errors.New("relay.queue_size must be >= 1")
	}

	if c.Server.SendRate < 1 || c.Server.SendRate > 1000 {
		return fmt.Errorf("server.send_rate must be between 1 and 1000, got %d", c.Server.SendRate)
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.FlushInterval <= 0 {
			return errors.New("archive.flush_interval must be > 0")
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Port < 1 || db.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535, got %d", prefix, db.Port)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s has no host", field)
			}
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %v, got %q", field, schemes, u.Scheme)
}
