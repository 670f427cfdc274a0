package smbctx

import (
	"errors"
	"syscall"
)

// Context is one authenticated connection scope. It owns the engine
// connection object, the credentials and the operation table bound at
// creation time.
//
// A Context is not safe for concurrent use. Distinct Contexts share no state.
type Context struct {
	conn  Connection
	creds *Credentials
	ops   *Operations
}

// Create builds a Context on top of engine. The three strings are copied
// verbatim into the Context's credential store.
//
// When injectFault is set, Create fails with an ENOMEM-class error before
// touching the engine.
func Create(engine Engine, domain, username, password string, injectFault bool) (*Context, error) {
	if injectFault {
		return nil, contextError("create", syscall.ENOMEM)
	}

	if engine == nil {
		return nil, contextError("create", syscall.EINVAL)
	}

	conn, err := engine.NewConnection()
	if err != nil {
		return nil, allocationError("create", err)
	}
	if conn == nil {
		return nil, allocationError("create", nil)
	}

	if err := conn.Init(); err != nil {
		return nil, initializationError("create", errors.Join(err, conn.Free(true)))
	}

	c := &Context{
		conn:  conn,
		creds: newCredentials(domain, username, password),
	}

	if err := conn.SetAuthFunc(c.authenticate); err != nil {
		c.rollback()
		return nil, allocationError("create", err)
	}

	c.ops = conn.Operations()
	if c.ops == nil {
		c.rollback()
		return nil, initializationError("create", nil)
	}

	return c, nil
}

// rollback undoes a partially constructed Context in reverse allocation order.
func (c *Context) rollback() {
	if c.creds != nil {
		_ = c.creds.release()
		c.creds = nil
	}
	if c.conn != nil {
		_ = c.conn.Free(true)
		c.conn = nil
	}
	c.ops = nil
}

// Destroy releases the credentials and then the engine connection. The
// engine's status for freeing the connection is returned unchanged.
//
// When injectFault is set, Destroy fails with an EBADF-class error and
// releases nothing. Calling Destroy on an already destroyed Context returns
// EBADF.
func (c *Context) Destroy(injectFault bool) error {
	if injectFault {
		return contextError("destroy", syscall.EBADF)
	}

	if c == nil || c.conn == nil || c.creds == nil {
		return contextError("destroy", syscall.EBADF)
	}

	if err := c.creds.release(); err != nil {
		return contextError("destroy", err)
	}
	c.creds = nil
	c.ops = nil

	conn := c.conn
	c.conn = nil

	return conn.Free(true)
}

// Valid reports whether the Context has been created and not yet destroyed.
func (c *Context) Valid() bool {
	return c != nil && c.conn != nil && c.creds != nil
}
