package smbctx

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
)

// MockEngine is an in-memory Engine for testing. It serves a virtual tree of
// shares, records every dispatched operation, counts connection allocations
// and releases, and can verify the credentials supplied by the AuthFunc
// against NT hashes the way an NTLM server does.
type MockEngine struct {
	mu sync.Mutex

	// files maps "/share/path" to mock file data
	files map[string]*mockFileData

	// accounts maps lower-cased usernames to NT hashes. When empty, any
	// credentials are accepted.
	accounts map[string][]byte

	// errors to inject for specific operations
	errorOnOp map[string]error

	// Construction failures.
	NewConnectionError error
	InitError          error
	SetAuthFuncError   error
	FreeError          error
	NilOperations      bool

	// Workgroup is written into the workgroup buffer before the AuthFunc runs.
	Workgroup string
	// AuthBufferSize is the capacity of each AuthFunc buffer (default: 256).
	AuthBufferSize int

	allocated int
	freed     int
	authCalls int
	lastAuth  MockAuth

	// operation tracking for verification (separate mutex to avoid lock contention)
	opMu       sync.Mutex
	operations []MockOperation
}

// MockOperation records an operation dispatched to the mock engine.
type MockOperation struct {
	Op   string
	Path string
	Conn Connection
	Args []interface{}
	Time time.Time
}

// MockAuth records the buffers of the most recent AuthFunc invocation.
type MockAuth struct {
	Server    string
	Share     string
	Workgroup string
	Username  string
	Password  string
	Raw       [3][]byte // workgroup, username, password buffers as written
}

// mockFileData represents a file or directory in the mock tree.
type mockFileData struct {
	name    string
	content []byte
	attrs   uint32
	modTime time.Time
	isDir   bool
}

// NewMockEngine creates a mock engine serving the given shares.
func NewMockEngine(shares ...string) *MockEngine {
	m := &MockEngine{
		files:          make(map[string]*mockFileData),
		accounts:       make(map[string][]byte),
		errorOnOp:      make(map[string]error),
		Workgroup:      "WORKGROUP",
		AuthBufferSize: authBufferSize,
	}

	for _, share := range shares {
		m.AddDir("/" + share)
	}

	return m
}

// AddDir adds a directory, and any missing parents, to the mock tree.
func (m *MockEngine) AddDir(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = normalizeMockPath(p)
	m.files[p] = &mockFileData{
		name:    path.Base(p),
		attrs:   FILE_ATTRIBUTE_DIRECTORY,
		modTime: time.Now(),
		isDir:   true,
	}
	m.ensureParentDirs(p)
}

// AddFile adds a file, and any missing parents, to the mock tree.
func (m *MockEngine) AddFile(p string, content []byte, attrs uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if attrs == 0 {
		attrs = FILE_ATTRIBUTE_ARCHIVE
	}

	p = normalizeMockPath(p)
	m.files[p] = &mockFileData{
		name:    path.Base(p),
		content: content,
		attrs:   attrs,
		modTime: time.Now(),
	}
	m.ensureParentDirs(p)
}

// AddAccount registers an account. Once any account exists, negotiation
// rejects credentials that do not match with EACCES.
func (m *MockEngine) AddAccount(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[strings.ToLower(username)] = ntHash(password)
}

// SetOperationError sets an error to return for a specific operation.
func (m *MockEngine) SetOperationError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorOnOp[op] = err
}

// ClearErrors clears all injected operation errors.
func (m *MockEngine) ClearErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorOnOp = make(map[string]error)
}

// Allocated returns how many connection objects were allocated.
func (m *MockEngine) Allocated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocated
}

// Freed returns how many times a connection object was released.
func (m *MockEngine) Freed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freed
}

// Live returns allocated minus released connection objects.
func (m *MockEngine) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocated - m.freed
}

// AuthCalls returns how many times an AuthFunc was invoked.
func (m *MockEngine) AuthCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authCalls
}

// LastAuth returns the buffers of the most recent AuthFunc invocation.
func (m *MockEngine) LastAuth() MockAuth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth
}

// GetOperations returns all recorded operations.
func (m *MockEngine) GetOperations() []MockOperation {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	ops := make([]MockOperation, len(m.operations))
	copy(ops, m.operations)
	return ops
}

// CountOperations returns how many times op was dispatched.
func (m *MockEngine) CountOperations(op string) int {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	n := 0
	for _, o := range m.operations {
		if o.Op == op {
			n++
		}
	}
	return n
}

// ClearOperations clears the operation history.
func (m *MockEngine) ClearOperations() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.operations = nil
}

// recordOp records an operation for later verification.
func (m *MockEngine) recordOp(op, p string, conn Connection, args ...interface{}) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.operations = append(m.operations, MockOperation{
		Op:   op,
		Path: p,
		Conn: conn,
		Args: args,
		Time: time.Now(),
	})
}

// ensureParentDirs ensures all parent directories exist.
func (m *MockEngine) ensureParentDirs(p string) {
	dir := path.Dir(p)
	if dir == p || dir == "/" {
		return
	}

	if _, ok := m.files[dir]; !ok {
		m.files[dir] = &mockFileData{
			name:    path.Base(dir),
			attrs:   FILE_ATTRIBUTE_DIRECTORY,
			modTime: time.Now(),
			isDir:   true,
		}
		m.ensureParentDirs(dir)
	}
}

// NewConnection allocates a mock connection object.
func (m *MockEngine) NewConnection() (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.NewConnectionError != nil {
		return nil, m.NewConnectionError
	}

	m.allocated++
	return &mockConnection{
		engine:     m,
		negotiated: make(map[string]bool),
	}, nil
}

// mockConnection implements Connection for testing.
type mockConnection struct {
	engine      *MockEngine
	initialized bool
	freed       bool
	auth        AuthFunc
	negotiated  map[string]bool
}

func (c *mockConnection) Init() error {
	if c.engine.InitError != nil {
		return c.engine.InitError
	}
	c.initialized = true
	return nil
}

func (c *mockConnection) SetAuthFunc(fn AuthFunc) error {
	if c.engine.SetAuthFuncError != nil {
		return c.engine.SetAuthFuncError
	}
	if fn == nil || !c.initialized {
		return syscall.EINVAL
	}
	c.auth = fn
	return nil
}

func (c *mockConnection) Operations() *Operations {
	if c.engine.NilOperations {
		return nil
	}
	return mockOperations
}

func (c *mockConnection) Free(shutdown bool) error {
	m := c.engine
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.freed {
		return syscall.EBADF
	}
	c.freed = true
	c.auth = nil
	m.freed++

	return m.FreeError
}

// resolve parses url, negotiates the server/share pair on first use and
// returns the mock tree key. Caller must hold the engine lock.
func (c *mockConnection) resolve(url string) (string, error) {
	if c.freed || !c.initialized {
		return "", syscall.EBADF
	}

	u, err := parseShareURL(url, 445)
	if err != nil {
		return "", err
	}

	if !c.negotiated[u.key()] {
		if err := c.negotiate(u); err != nil {
			return "", err
		}
		c.negotiated[u.key()] = true
	}

	return normalizeMockPath("/" + u.Share + "/" + u.Path), nil
}

// negotiate invokes the AuthFunc and checks the result against the
// registered accounts. Caller must hold the engine lock.
func (c *mockConnection) negotiate(u *shareURL) error {
	m := c.engine

	if _, ok := m.files[normalizeMockPath("/"+u.Share)]; !ok {
		return syscall.ENOENT
	}

	size := m.AuthBufferSize
	workgroup := make([]byte, size)
	username := make([]byte, size)
	password := make([]byte, size)

	copyTerminated(workgroup, []byte(m.Workgroup))
	if c.auth != nil {
		c.auth(u.Host, u.Share, workgroup, username, password)
	}

	m.authCalls++
	m.lastAuth = MockAuth{
		Server:    u.Host,
		Share:     u.Share,
		Workgroup: CString(workgroup),
		Username:  CString(username),
		Password:  CString(password),
		Raw:       [3][]byte{workgroup, username, password},
	}

	if len(m.accounts) == 0 {
		return nil
	}

	want, ok := m.accounts[strings.ToLower(CString(username))]
	if !ok || !bytes.Equal(want, ntHash(CString(password))) {
		return syscall.EACCES
	}

	return nil
}

// checkError returns the injected error for op, if any. Caller must hold the
// engine lock.
func (m *MockEngine) checkError(op string) error {
	if err, ok := m.errorOnOp[op]; ok {
		return err
	}
	return nil
}

// mockFile is the FileHandle of the mock engine.
type mockFile struct {
	path   string
	data   *mockFileData
	offset int64
	closed bool
}

// mockDir is the DirHandle of the mock engine. entry is reused across
// ReaddirPlus2 calls.
type mockDir struct {
	path    string
	entries []*mockFileData
	pos     int
	closed  bool
	entry   DirEntry
}

var mockOperations = &Operations{
	Open:         mockOpen,
	Read:         mockRead,
	Close:        mockClose,
	Opendir:      mockOpendir,
	Closedir:     mockClosedir,
	ReaddirPlus2: mockReaddirPlus2,
	Stat:         mockStat,
}

func asMock(conn Connection) (*mockConnection, error) {
	c, ok := conn.(*mockConnection)
	if !ok || c == nil {
		return nil, syscall.EBADF
	}
	return c, nil
}

func mockOpen(conn Connection, url string, flag int, perm fs.FileMode) (FileHandle, error) {
	c, err := asMock(conn)
	if err != nil {
		return nil, err
	}
	m := c.engine
	m.recordOp(OpOpen, url, conn, flag, perm)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkError(OpOpen); err != nil {
		return nil, err
	}

	key, err := c.resolve(url)
	if err != nil {
		return nil, err
	}

	data, ok := m.files[key]
	if !ok {
		return nil, syscall.ENOENT
	}
	if data.isDir {
		return nil, syscall.EISDIR
	}

	return &mockFile{path: key, data: data}, nil
}

func mockRead(conn Connection, file FileHandle, p []byte) (int, error) {
	c, err := asMock(conn)
	if err != nil {
		return -1, err
	}
	m := c.engine

	f, ok := file.(*mockFile)
	if !ok || f.closed {
		m.recordOp(OpRead, "", conn, len(p))
		return -1, syscall.EBADF
	}
	m.recordOp(OpRead, f.path, conn, len(p))

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkError(OpRead); err != nil {
		return -1, err
	}
	if f.offset >= int64(len(f.data.content)) {
		return 0, io.EOF
	}

	n := copy(p, f.data.content[f.offset:])
	f.offset += int64(n)

	return n, nil
}

func mockClose(conn Connection, file FileHandle) error {
	c, err := asMock(conn)
	if err != nil {
		return err
	}
	m := c.engine

	f, ok := file.(*mockFile)
	if !ok || f.closed {
		m.recordOp(OpClose, "", conn)
		return syscall.EBADF
	}
	m.recordOp(OpClose, f.path, conn)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkError(OpClose); err != nil {
		return err
	}

	f.closed = true
	return nil
}

func mockOpendir(conn Connection, url string) (DirHandle, error) {
	c, err := asMock(conn)
	if err != nil {
		return nil, err
	}
	m := c.engine
	m.recordOp(OpOpendir, url, conn)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkError(OpOpendir); err != nil {
		return nil, err
	}

	key, err := c.resolve(url)
	if err != nil {
		return nil, err
	}

	data, ok := m.files[key]
	if !ok {
		return nil, syscall.ENOENT
	}
	if !data.isDir {
		return nil, syscall.ENOTDIR
	}

	// Servers list "." and ".." first.
	entries := []*mockFileData{
		{name: ".", attrs: FILE_ATTRIBUTE_DIRECTORY, modTime: data.modTime, isDir: true},
		{name: "..", attrs: FILE_ATTRIBUTE_DIRECTORY, modTime: data.modTime, isDir: true},
	}

	var children []*mockFileData
	prefix := key + "/"
	for p, d := range m.files {
		if !strings.HasPrefix(p, prefix) || strings.Contains(strings.TrimPrefix(p, prefix), "/") {
			continue
		}
		children = append(children, d)
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].name < children[j].name
	})

	return &mockDir{path: key, entries: append(entries, children...)}, nil
}

func mockClosedir(conn Connection, dir DirHandle) error {
	c, err := asMock(conn)
	if err != nil {
		return err
	}
	m := c.engine

	d, ok := dir.(*mockDir)
	if !ok || d.closed {
		m.recordOp(OpClosedir, "", conn)
		return syscall.EBADF
	}
	m.recordOp(OpClosedir, d.path, conn)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkError(OpClosedir); err != nil {
		return err
	}

	d.closed = true
	return nil
}

func mockReaddirPlus2(conn Connection, dir DirHandle, st *Stat) (*DirEntry, error) {
	c, err := asMock(conn)
	if err != nil {
		return nil, err
	}
	m := c.engine

	d, ok := dir.(*mockDir)
	if !ok || d.closed {
		m.recordOp(OpReaddirPlus2, "", conn)
		return nil, syscall.EBADF
	}
	m.recordOp(OpReaddirPlus2, d.path, conn)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkError(OpReaddirPlus2); err != nil {
		return nil, err
	}

	if d.pos >= len(d.entries) {
		return nil, io.EOF
	}

	data := d.entries[d.pos]
	d.pos++

	fillMockStat(st, data)
	d.entry = DirEntry{
		Name:       data.name,
		Size:       int64(len(data.content)),
		Attributes: data.attrs,
		Btime:      data.modTime,
		Ctime:      data.modTime,
		Atime:      data.modTime,
		Mtime:      data.modTime,
	}

	return &d.entry, nil
}

func mockStat(conn Connection, url string, st *Stat) error {
	c, err := asMock(conn)
	if err != nil {
		return err
	}
	m := c.engine
	m.recordOp(OpStat, url, conn)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkError(OpStat); err != nil {
		return err
	}

	key, err := c.resolve(url)
	if err != nil {
		return err
	}

	data, ok := m.files[key]
	if !ok {
		return syscall.ENOENT
	}

	fillMockStat(st, data)
	return nil
}

func fillMockStat(st *Stat, data *mockFileData) {
	if st == nil {
		return
	}

	size := int64(len(data.content))
	*st = Stat{
		Mode:       attributesToStatMode(data.attrs),
		Size:       size,
		Blocks:     (size + 511) / 512,
		Attributes: data.attrs,
		Atime:      data.modTime,
		Mtime:      data.modTime,
		Ctime:      data.modTime,
		Btime:      data.modTime,
	}
}

// ntHash computes the NT hash (MD4 of UTF-16LE password).
func ntHash(password string) []byte {
	runes := utf16.Encode([]rune(password))
	buf := make([]byte, len(runes)*2)
	for i, r := range runes {
		buf[i*2] = byte(r)
		buf[i*2+1] = byte(r >> 8)
	}

	h := md4.New()
	h.Write(buf)
	return h.Sum(nil)
}

// normalizeMockPath normalizes a path for the mock tree.
func normalizeMockPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
