// Package config loads relay client and development server settings from
// YAML.
//
// ${VAR} references in the file are expanded from the environment before
// parsing. RELAY_EMAIL, RELAY_PASSWORD, RELAY_WS_URL, RELAY_LOGIN_URL and
// RELAY_DB_PASSWORD then override the corresponding fields, and defaults
// fill whatever is still unset. The archive section is only validated when
// the archive is enabled.
package config
