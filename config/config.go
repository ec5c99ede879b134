// Package config holds the typed, sconf-loadable configuration for
// starting a session.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/mjl-/sconf"
)

// SSLVerify selects the server certificate verification mode.
type SSLVerify string

const (
	SSLVerifyPeer SSLVerify = "peer"
	SSLVerifyNone SSLVerify = "none"
)

// Config is the configuration required to start a session, matching the
// external interface's start(config) contract.
type Config struct {
	Server    string // Required.
	Port      int    `sconf:"optional" sconf-doc:"IMAP server port, defaults to 993."`
	TLS       bool   `sconf:"optional" sconf-doc:"Whether to use TLS (implicit, not STARTTLS) on connect; defaults to true."`
	Username  string // Required.
	Password  string // Required.
	Name      string `sconf:"optional" sconf-doc:"Free-form name for this session, shown by String(); has no protocol meaning."`
	Mailbox   string `sconf:"optional" sconf-doc:"Mailbox to SELECT, defaults to INBOX."`
	SSLVerify string `sconf:"optional" sconf-doc:"\"peer\" (default) or \"none\"."`
}

// SetDefaults fills in zero-valued defaults: Port 993, Mailbox INBOX,
// SSLVerify peer. It does not touch TLS; the TLS default of true is set by
// Parse before decoding.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 993
	}
	if c.Mailbox == "" {
		c.Mailbox = "INBOX"
	}
	if c.SSLVerify == "" {
		c.SSLVerify = string(SSLVerifyPeer)
	}
}

// Parse reads an sconf-formatted configuration file from r. Defaults are
// not applied; call SetDefaults afterwards.
func Parse(r io.Reader) (Config, error) {
	var c Config
	c.TLS = true
	if err := sconf.Parse(r, &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing: %w", err)
	}
	return c, nil
}

// Validate returns a precise error for the first missing required field or
// invalid value, per the spec's "configuration error at start" contract.
// Call after SetDefaults.
func (c Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("config: server is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.Username == "" {
		return fmt.Errorf("config: username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("config: password is required")
	}
	if c.Mailbox == "" {
		return fmt.Errorf("config: mailbox is required")
	}
	switch SSLVerify(strings.ToLower(c.SSLVerify)) {
	case SSLVerifyPeer, SSLVerifyNone:
	default:
		return fmt.Errorf("config: invalid ssl_verify %q, must be \"peer\" or \"none\"", c.SSLVerify)
	}
	return nil
}

// String renders the config for diagnostic printing, with the password
// redacted.
func (c Config) String() string {
	return fmt.Sprintf("server=%s port=%d tls=%v username=%s password=*** name=%s mailbox=%s ssl_verify=%s",
		c.Server, c.Port, c.TLS, c.Username, c.Name, c.Mailbox, c.SSLVerify)
}
