package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/socket-relay/internal/config"
)

// ApplicationName is reported to PostgreSQL for every archive connection.
const ApplicationName = "socket-relay"

// BuildConnString builds a PostgreSQL connection URL from config.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	query := url.Values{
		"application_name": {ApplicationName},
		"sslmode":          {sslMode},
	}

	// UserPassword escapes special characters in the password.
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	return u.String()
}
