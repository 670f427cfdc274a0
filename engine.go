package smbctx

import (
	"io/fs"
	"time"
)

// Engine is the underlying SMB client implementation a Context wraps.
// It only has to produce connection objects; everything else hangs off the
// Connection.
type Engine interface {
	// NewConnection allocates a connection object. It performs no I/O.
	NewConnection() (Connection, error)
}

// Connection is one engine-level connection object.
type Connection interface {
	// Init performs engine-level initialization of the connection object.
	Init() error
	// SetAuthFunc registers the callback the engine invokes whenever it
	// needs credentials while negotiating with a server/share.
	SetAuthFunc(fn AuthFunc) error
	// Operations returns the operation table bound to this connection.
	Operations() *Operations
	// Free releases the connection object. When shutdown is true, open
	// sessions are torn down as well.
	Free(shutdown bool) error
}

// AuthFunc is invoked by an engine during negotiation. The buffers are
// owned by the engine and must not be retained after the call returns.
type AuthFunc func(server, share string, workgroup, username, password []byte)

// FileHandle is an opaque open-file handle scoped to one Context.
type FileHandle any

// DirHandle is an opaque directory handle scoped to one Context.
type DirHandle any

// Operations is the table of entry points an engine binds to a connection.
// Every entry receives the owning Connection as its first argument.
type Operations struct {
	Open         func(conn Connection, url string, flag int, perm fs.FileMode) (FileHandle, error)
	Read         func(conn Connection, file FileHandle, p []byte) (int, error)
	Close        func(conn Connection, file FileHandle) error
	Opendir      func(conn Connection, url string) (DirHandle, error)
	Closedir     func(conn Connection, dir DirHandle) error
	ReaddirPlus2 func(conn Connection, dir DirHandle, st *Stat) (*DirEntry, error)
	Stat         func(conn Connection, url string, st *Stat) error
}

// Stat is the stat-equivalent metadata reported for a file or directory.
type Stat struct {
	Mode       uint32 // POSIX st_mode: file type and permission bits
	Size       int64
	Blocks     int64 // 512-byte blocks allocated
	Ino        uint64
	Attributes uint32 // FILE_ATTRIBUTE_* flags
	Atime      time.Time
	Mtime      time.Time
	Ctime      time.Time
	Btime      time.Time
}

// POSIX file type bits used in Stat.Mode.
const (
	StatModeTypeMask = 0o170000
	StatModeDir      = 0o040000
	StatModeRegular  = 0o100000
)

// IsDir reports whether the stat describes a directory.
func (st *Stat) IsDir() bool {
	return st.Mode&StatModeTypeMask == StatModeDir
}

// FileMode converts the POSIX mode into an fs.FileMode.
func (st *Stat) FileMode() fs.FileMode {
	mode := fs.FileMode(st.Mode) & fs.ModePerm
	if st.IsDir() {
		mode |= fs.ModeDir
	}
	return mode
}

// DirEntry is one result of a ReaddirPlus2 step. Engines may reuse the
// backing storage, so an entry is only valid until the next call on the same
// directory handle.
type DirEntry struct {
	Name       string
	ShortName  string
	Size       int64
	Attributes uint32
	Btime      time.Time
	Ctime      time.Time
	Atime      time.Time
	Mtime      time.Time
}
