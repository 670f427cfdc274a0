package smbctx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/hirochachacha/go-smb2"
)

// authBufferSize is the capacity of each buffer handed to the AuthFunc.
const authBufferSize = 256

// readdirBatch is how many entries are fetched per directory query.
const readdirBatch = 64

// SMB2Engine is the Engine backed by github.com/hirochachacha/go-smb2.
// Sessions are negotiated lazily, once per server/share pair, the first time
// an operation addresses that pair.
type SMB2Engine struct {
	// Workgroup is written into the workgroup buffer before the AuthFunc runs
	// and used as the NTLM domain (default: WORKGROUP).
	Workgroup string
	// Port is used for URLs without an explicit port (default: 445).
	Port int
	// ConnTimeout bounds TCP dial and session negotiation (default: 30s).
	ConnTimeout time.Duration
}

// NewSMB2Engine returns an engine with default settings.
func NewSMB2Engine() *SMB2Engine {
	return &SMB2Engine{}
}

// NewConnection allocates an uninitialized connection object.
func (e *SMB2Engine) NewConnection() (Connection, error) {
	return &smb2Connection{
		workgroup:   e.Workgroup,
		port:        e.Port,
		connTimeout: e.ConnTimeout,
	}, nil
}

// smb2Connection is the go-smb2 connection object. It caches one mounted
// share per server/share pair.
type smb2Connection struct {
	workgroup   string
	port        int
	connTimeout time.Duration

	mu          sync.Mutex
	initialized bool
	freed       bool
	auth        AuthFunc
	mounts      map[string]*smb2Mount
}

// smb2Mount is an authenticated session plus its mounted share.
type smb2Mount struct {
	netConn net.Conn
	session *smb2.Session
	share   *smb2.Share
}

func (c *smb2Connection) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return fmt.Errorf("connection already initialized")
	}

	if c.workgroup == "" {
		c.workgroup = "WORKGROUP"
	}
	if c.port == 0 {
		c.port = 445
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port: %d", c.port)
	}
	if c.connTimeout == 0 {
		c.connTimeout = 30 * time.Second
	}

	c.mounts = make(map[string]*smb2Mount)
	c.initialized = true

	return nil
}

func (c *smb2Connection) SetAuthFunc(fn AuthFunc) error {
	if fn == nil {
		return syscall.EINVAL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized || c.freed {
		return syscall.EINVAL
	}
	c.auth = fn

	return nil
}

func (c *smb2Connection) Operations() *Operations {
	return smb2Operations
}

// Free logs off every session. The first failure is returned after all
// sessions have been torn down.
func (c *smb2Connection) Free(shutdown bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.freed {
		return syscall.EBADF
	}
	c.freed = true

	var errs []error
	for key, m := range c.mounts {
		if shutdown {
			errs = append(errs, m.close())
		}
		delete(c.mounts, key)
	}
	c.auth = nil

	return errors.Join(errs...)
}

func (m *smb2Mount) close() error {
	var errs []error
	if m.share != nil {
		errs = append(errs, m.share.Umount())
	}
	if m.session != nil {
		errs = append(errs, m.session.Logoff())
	}
	if m.netConn != nil {
		errs = append(errs, m.netConn.Close())
	}
	return errors.Join(errs...)
}

// mount returns the share addressed by rawURL, negotiating a session on
// first use, along with the share-relative path.
func (c *smb2Connection) mount(rawURL string) (*smb2.Share, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized || c.freed {
		return nil, "", syscall.EBADF
	}

	u, err := parseShareURL(rawURL, c.port)
	if err != nil {
		return nil, "", err
	}

	if m, ok := c.mounts[u.key()]; ok {
		return m.share, u.Path, nil
	}

	m, err := c.negotiate(u)
	if err != nil {
		return nil, "", err
	}
	c.mounts[u.key()] = m

	return m.share, u.Path, nil
}

// negotiate dials the server, obtains credentials from the AuthFunc and
// mounts the share.
func (c *smb2Connection) negotiate(u *shareURL) (*smb2Mount, error) {
	workgroup := make([]byte, authBufferSize)
	username := make([]byte, authBufferSize)
	password := make([]byte, authBufferSize)
	defer clear(password)

	copyTerminated(workgroup, []byte(c.workgroup))
	if c.auth != nil {
		c.auth(u.Host, u.Share, workgroup, username, password)
	}

	dialer := &net.Dialer{
		Timeout: c.connTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.connTimeout)
	defer cancel()

	netConn, err := dialer.DialContext(ctx, "tcp", u.addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u.addr(), err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     CString(username),
			Password: CString(password),
			Domain:   CString(workgroup),
		},
	}

	session, err := d.DialContext(ctx, netConn)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("SMB session setup failed: %w", err)
	}

	share, err := session.Mount(u.Share)
	if err != nil {
		_ = session.Logoff()
		netConn.Close()
		return nil, fmt.Errorf("failed to mount share %s: %w", u.Share, err)
	}

	return &smb2Mount{
		netConn: netConn,
		session: session,
		share:   share,
	}, nil
}

// smb2File is the FileHandle handed out by the go-smb2 engine.
type smb2File struct {
	file *smb2.File
}

// smb2Dir is the DirHandle handed out by the go-smb2 engine. entry is reused
// across ReaddirPlus2 calls.
type smb2Dir struct {
	file    *smb2.File
	pending []fs.FileInfo
	done    bool
	entry   DirEntry
}

var smb2Operations = &Operations{
	Open:         smb2Open,
	Read:         smb2Read,
	Close:        smb2Close,
	Opendir:      smb2Opendir,
	Closedir:     smb2Closedir,
	ReaddirPlus2: smb2ReaddirPlus2,
	Stat:         smb2Stat,
}

func asSMB2(conn Connection) (*smb2Connection, error) {
	c, ok := conn.(*smb2Connection)
	if !ok || c == nil {
		return nil, syscall.EBADF
	}
	return c, nil
}

func smb2Open(conn Connection, url string, flag int, perm fs.FileMode) (FileHandle, error) {
	c, err := asSMB2(conn)
	if err != nil {
		return nil, err
	}

	share, name, err := c.mount(url)
	if err != nil {
		return nil, err
	}

	file, err := share.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, syscall.EISDIR
	}

	return &smb2File{file: file}, nil
}

func smb2Read(conn Connection, file FileHandle, p []byte) (int, error) {
	f, ok := file.(*smb2File)
	if !ok || f.file == nil {
		return -1, syscall.EBADF
	}
	return f.file.Read(p)
}

func smb2Close(conn Connection, file FileHandle) error {
	f, ok := file.(*smb2File)
	if !ok || f.file == nil {
		return syscall.EBADF
	}

	err := f.file.Close()
	f.file = nil
	return err
}

func smb2Opendir(conn Connection, url string) (DirHandle, error) {
	c, err := asSMB2(conn)
	if err != nil {
		return nil, err
	}

	share, name, err := c.mount(url)
	if err != nil {
		return nil, err
	}

	file, err := share.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if !info.IsDir() {
		file.Close()
		return nil, syscall.ENOTDIR
	}

	return &smb2Dir{file: file}, nil
}

func smb2Closedir(conn Connection, dir DirHandle) error {
	d, ok := dir.(*smb2Dir)
	if !ok || d.file == nil {
		return syscall.EBADF
	}

	err := d.file.Close()
	d.file = nil
	d.pending = nil
	return err
}

func smb2ReaddirPlus2(conn Connection, dir DirHandle, st *Stat) (*DirEntry, error) {
	d, ok := dir.(*smb2Dir)
	if !ok || d.file == nil {
		return nil, syscall.EBADF
	}

	for len(d.pending) == 0 {
		if d.done {
			return nil, io.EOF
		}

		infos, err := d.file.Readdir(readdirBatch)
		if err == io.EOF {
			d.done = true
		} else if err != nil {
			return nil, err
		}
		d.pending = infos
	}

	info := d.pending[0]
	d.pending = d.pending[1:]

	fillStat(st, info)
	d.entry = DirEntry{
		Name:  info.Name(),
		Size:  info.Size(),
		Mtime: info.ModTime(),
	}
	if fst := asFileStat(info); fst != nil {
		d.entry.Attributes = fst.FileAttributes
		d.entry.Btime = fst.CreationTime
		d.entry.Ctime = fst.ChangeTime
		d.entry.Atime = fst.LastAccessTime
	}

	return &d.entry, nil
}

func smb2Stat(conn Connection, url string, st *Stat) error {
	c, err := asSMB2(conn)
	if err != nil {
		return err
	}

	share, name, err := c.mount(url)
	if err != nil {
		return err
	}

	info, err := share.Stat(name)
	if err != nil {
		return err
	}

	fillStat(st, info)
	return nil
}

// fillStat populates st from a go-smb2 file info. A nil st is ignored.
func fillStat(st *Stat, info fs.FileInfo) {
	if st == nil {
		return
	}

	*st = Stat{
		Size:  info.Size(),
		Mtime: info.ModTime(),
	}

	attrs := uint32(FILE_ATTRIBUTE_NORMAL)
	if info.IsDir() {
		attrs = FILE_ATTRIBUTE_DIRECTORY
	}

	if fst := asFileStat(info); fst != nil {
		attrs = fst.FileAttributes
		st.Blocks = (fst.AllocationSize + 511) / 512
		st.Atime = fst.LastAccessTime
		st.Ctime = fst.ChangeTime
		st.Btime = fst.CreationTime
	}

	st.Attributes = attrs
	st.Mode = attributesToStatMode(attrs)
}

func asFileStat(info fs.FileInfo) *smb2.FileStat {
	if fst, ok := info.(*smb2.FileStat); ok {
		return fst
	}
	if fst, ok := info.Sys().(*smb2.FileStat); ok {
		return fst
	}
	return nil
}
