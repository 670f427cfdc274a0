package smbctx

import (
	"io/fs"
	"syscall"
)

// Operation names, as reported in ContextError.Op.
const (
	OpOpen         = "open"
	OpRead         = "read"
	OpClose        = "close"
	OpOpendir      = "opendir"
	OpClosedir     = "closedir"
	OpReaddirPlus2 = "readdirplus2"
	OpStat         = "stat"
)

// table returns the operation table, or an EBADF error for a destroyed
// Context.
func (c *Context) table(op string) (*Operations, error) {
	if c == nil || c.ops == nil {
		return nil, contextError(op, syscall.EBADF)
	}
	return c.ops, nil
}

func unsupported(op string) error {
	return contextError(op, syscall.ENOSYS)
}

// Open opens the file at url through the engine.
func (c *Context) Open(url string, flag int, perm fs.FileMode) (FileHandle, error) {
	ops, err := c.table(OpOpen)
	if err != nil {
		return nil, err
	}
	if ops.Open == nil {
		return nil, unsupported(OpOpen)
	}
	return ops.Open(c.conn, url, flag, perm)
}

// Read reads up to len(p) bytes from file.
func (c *Context) Read(file FileHandle, p []byte) (int, error) {
	ops, err := c.table(OpRead)
	if err != nil {
		return -1, err
	}
	if ops.Read == nil {
		return -1, unsupported(OpRead)
	}
	return ops.Read(c.conn, file, p)
}

// Close closes file.
func (c *Context) Close(file FileHandle) error {
	ops, err := c.table(OpClose)
	if err != nil {
		return err
	}
	if ops.Close == nil {
		return unsupported(OpClose)
	}
	return ops.Close(c.conn, file)
}

// Opendir opens the directory at url for enumeration.
func (c *Context) Opendir(url string) (DirHandle, error) {
	ops, err := c.table(OpOpendir)
	if err != nil {
		return nil, err
	}
	if ops.Opendir == nil {
		return nil, unsupported(OpOpendir)
	}
	return ops.Opendir(c.conn, url)
}

// Closedir closes dir.
func (c *Context) Closedir(dir DirHandle) error {
	ops, err := c.table(OpClosedir)
	if err != nil {
		return err
	}
	if ops.Closedir == nil {
		return unsupported(OpClosedir)
	}
	return ops.Closedir(c.conn, dir)
}

// ReaddirPlus2 returns the next entry of dir and fills st with its
// metadata. The end of the listing is reported by the engine, normally as
// io.EOF.
//
// When injectFault is set, ReaddirPlus2 fails with EBADF without calling the
// engine.
func (c *Context) ReaddirPlus2(dir DirHandle, st *Stat, injectFault bool) (*DirEntry, error) {
	if injectFault {
		return nil, contextError(OpReaddirPlus2, syscall.EBADF)
	}

	ops, err := c.table(OpReaddirPlus2)
	if err != nil {
		return nil, err
	}
	if ops.ReaddirPlus2 == nil {
		return nil, unsupported(OpReaddirPlus2)
	}
	return ops.ReaddirPlus2(c.conn, dir, st)
}

// Stat fills st with the metadata of the file or directory at url.
func (c *Context) Stat(url string, st *Stat) error {
	ops, err := c.table(OpStat)
	if err != nil {
		return err
	}
	if ops.Stat == nil {
		return unsupported(OpStat)
	}
	return ops.Stat(c.conn, url, st)
}
