package smbctx

// Credentials holds the domain, username and password of one Context.
// The values are private copies of what the caller supplied, stored
// verbatim.
type Credentials struct {
	domain   []byte
	username []byte
	password []byte
	released bool
}

func newCredentials(domain, username, password string) *Credentials {
	return &Credentials{
		domain:   []byte(domain),
		username: []byte(username),
		password: []byte(password),
	}
}

// Domain returns the stored domain.
func (c *Credentials) Domain() string { return string(c.domain) }

// Username returns the stored username.
func (c *Credentials) Username() string { return string(c.username) }

// Password returns the stored password.
func (c *Credentials) Password() string { return string(c.password) }

// Released reports whether the store has been released.
func (c *Credentials) Released() bool { return c.released }

// release wipes all three values. It must run exactly once.
func (c *Credentials) release() error {
	if c.released {
		return ErrCredentialsReleased
	}

	clear(c.domain)
	clear(c.password)
	clear(c.username)
	c.domain, c.password, c.username = nil, nil, nil
	c.released = true

	return nil
}
