// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package descriptor models the connection parameters for the database
// currently advertised to the harness. The controller is the sole writer
// of the on-disk descriptor; the write driver re-reads it before every
// attempt so that it follows endpoint failover without a restart.
package descriptor

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/juju/errors"
)

// DefaultPath is the well-known location of the descriptor file.
const DefaultPath = "/tmp/continuous_writes_config"

// Descriptor is a snapshot of the database connection parameters. It is
// immutable once read; a fresh snapshot is taken for every write attempt
// because the endpoint may change between attempts.
type Descriptor struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// ConnectTimeout bounds the initial connection handshake.
	ConnectTimeout time.Duration

	// KeepaliveIdle is the TCP keepalive probe interval used when
	// dialing, so that a primary that silently goes away is noticed.
	KeepaliveIdle time.Duration

	// TCPUserTimeout bounds how long transmitted data may remain
	// unacknowledged before the connection is considered dead. It is
	// carried in the descriptor for the server-side dial path; the
	// driver enforces its own per-attempt cap on top of it.
	TCPUserTimeout time.Duration

	// RequireTLS forces sslmode=require on the connection.
	RequireTLS bool
}

// Validate returns an error if the descriptor cannot identify a database.
func (d Descriptor) Validate() error {
	if d.Host == "" {
		return errors.NotValidf("empty host")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return errors.NotValidf("port %d", d.Port)
	}
	if d.Database == "" {
		return errors.NotValidf("empty database name")
	}
	if d.User == "" {
		return errors.NotValidf("empty user")
	}
	return nil
}

// String renders the descriptor as a libpq-style keyword/value connection
// string, the format stored on disk.
func (d Descriptor) String() string {
	parts := []string{
		fmt.Sprintf("dbname=%s", quote(d.Database)),
		fmt.Sprintf("user=%s", quote(d.User)),
		fmt.Sprintf("host=%s", quote(d.Host)),
		fmt.Sprintf("password=%s", quote(d.Password)),
		fmt.Sprintf("port=%d", d.Port),
	}
	if d.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(d.ConnectTimeout.Seconds())))
	}
	if d.KeepaliveIdle > 0 {
		parts = append(parts,
			"keepalives=1",
			fmt.Sprintf("keepalives_idle=%d", int(d.KeepaliveIdle.Seconds())),
			"keepalives_count=1",
		)
	}
	if d.TCPUserTimeout > 0 {
		parts = append(parts, fmt.Sprintf("tcp_user_timeout=%d", d.TCPUserTimeout.Milliseconds()))
	}
	if d.RequireTLS {
		parts = append(parts, "sslmode=require")
	}
	return strings.Join(parts, " ")
}

// ConnConfig builds a pgx connection config from the descriptor. Keywords
// that only libpq understands (the keepalive family) are applied through
// the dialer instead of the connection string.
func (d Descriptor) ConnConfig() (*pgx.ConnConfig, error) {
	if err := d.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	parts := []string{
		fmt.Sprintf("host=%s", quote(d.Host)),
		fmt.Sprintf("port=%d", d.Port),
		fmt.Sprintf("dbname=%s", quote(d.Database)),
		fmt.Sprintf("user=%s", quote(d.User)),
	}
	if d.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", quote(d.Password)))
	}
	if d.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(d.ConnectTimeout.Seconds())))
	}
	if d.RequireTLS {
		parts = append(parts, "sslmode=require")
	} else {
		parts = append(parts, "sslmode=prefer")
	}
	cfg, err := pgx.ParseConfig(strings.Join(parts, " "))
	if err != nil {
		return nil, errors.Trace(err)
	}
	dialer := &net.Dialer{
		Timeout:   d.ConnectTimeout,
		KeepAlive: d.KeepaliveIdle,
	}
	cfg.DialFunc = dialer.DialContext
	return cfg, nil
}

// Parse parses a libpq-style keyword/value connection string. Unknown
// keywords are ignored so descriptors written by a newer controller still
// load.
func Parse(s string) (Descriptor, error) {
	var d Descriptor
	opts, err := parseKeywords(s)
	if err != nil {
		return d, errors.Trace(err)
	}
	for key, value := range opts {
		switch key {
		case "host":
			d.Host = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return d, errors.NotValidf("port %q", value)
			}
			d.Port = port
		case "dbname":
			d.Database = value
		case "user":
			d.User = value
		case "password":
			d.Password = value
		case "connect_timeout":
			secs, err := strconv.Atoi(value)
			if err != nil {
				return d, errors.NotValidf("connect_timeout %q", value)
			}
			d.ConnectTimeout = time.Duration(secs) * time.Second
		case "keepalives_idle":
			secs, err := strconv.Atoi(value)
			if err != nil {
				return d, errors.NotValidf("keepalives_idle %q", value)
			}
			d.KeepaliveIdle = time.Duration(secs) * time.Second
		case "tcp_user_timeout":
			ms, err := strconv.Atoi(value)
			if err != nil {
				return d, errors.NotValidf("tcp_user_timeout %q", value)
			}
			d.TCPUserTimeout = time.Duration(ms) * time.Millisecond
		case "sslmode":
			d.RequireTLS = value == "require" || value == "verify-ca" || value == "verify-full"
		}
	}
	if err := d.Validate(); err != nil {
		return d, errors.Trace(err)
	}
	return d, nil
}

// quote single-quotes a value when it contains characters that would
// break keyword/value parsing, escaping in the libpq manner.
func quote(value string) string {
	if value != "" && !strings.ContainsAny(value, " '\\") {
		return value
	}
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

// parseKeywords splits a keyword/value connection string, honouring
// single-quoted values and backslash escapes.
func parseKeywords(s string) (map[string]string, error) {
	opts := make(map[string]string)
	runes := []rune(s)
	i := 0
	for i < len(runes) {
		// Skip whitespace between settings.
		for i < len(runes) && runes[i] == ' ' {
			i++
		}
		if i >= len(runes) {
			break
		}
		start := i
		for i < len(runes) && runes[i] != '=' && runes[i] != ' ' {
			i++
		}
		if i >= len(runes) || runes[i] != '=' {
			return nil, errors.NotValidf("connection string segment %q", string(runes[start:i]))
		}
		key := string(runes[start:i])
		i++ // consume '='

		var value strings.Builder
		if i < len(runes) && runes[i] == '\'' {
			i++
			closed := false
			for i < len(runes) {
				switch runes[i] {
				case '\\':
					i++
					if i >= len(runes) {
						return nil, errors.NotValidf("trailing escape in connection string")
					}
					value.WriteRune(runes[i])
					i++
				case '\'':
					i++
					closed = true
				default:
					value.WriteRune(runes[i])
					i++
				}
				if closed {
					break
				}
			}
			if !closed {
				return nil, errors.NotValidf("unterminated quoted value for %q", key)
			}
		} else {
			for i < len(runes) && runes[i] != ' ' {
				if runes[i] == '\\' {
					i++
					if i >= len(runes) {
						return nil, errors.NotValidf("trailing escape in connection string")
					}
				}
				value.WriteRune(runes[i])
				i++
			}
		}
		opts[key] = value.String()
	}
	return opts, nil
}
