package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	c := Config{Server: "imap.example.com", Username: "alice", Password: "secret"}
	c.SetDefaults()
	return c
}

func TestSetDefaults(t *testing.T) {
	c := Config{}
	c.SetDefaults()
	if c.Port != 993 {
		t.Fatalf("Port = %d, want 993", c.Port)
	}
	if c.Mailbox != "INBOX" {
		t.Fatalf("Mailbox = %q, want INBOX", c.Mailbox)
	}
	if c.SSLVerify != string(SSLVerifyPeer) {
		t.Fatalf("SSLVerify = %q, want %q", c.SSLVerify, SSLVerifyPeer)
	}

	// Explicit values are left alone.
	c = Config{Port: 143, Mailbox: "Archive", SSLVerify: "none"}
	c.SetDefaults()
	if c.Port != 143 || c.Mailbox != "Archive" || c.SSLVerify != "none" {
		t.Fatalf("SetDefaults overwrote an explicit value: %+v", c)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing server", func(c *Config) { c.Server = "" }, "server is required"},
		{"missing username", func(c *Config) { c.Username = "" }, "username is required"},
		{"missing password", func(c *Config) { c.Password = "" }, "password is required"},
		{"missing mailbox", func(c *Config) { c.Mailbox = "" }, "mailbox is required"},
		{"bad port", func(c *Config) { c.Port = 70000 }, "invalid port"},
		{"bad ssl_verify", func(c *Config) { c.SSLVerify = "maybe" }, "invalid ssl_verify"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatalf("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestStringRedactsPassword(t *testing.T) {
	c := validConfig()
	s := c.String()
	if strings.Contains(s, c.Password) {
		t.Fatalf("String() leaked the password: %q", s)
	}
	if !strings.Contains(s, "password=***") {
		t.Fatalf("String() = %q, want redacted password marker", s)
	}
}
