package smbctx

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"syscall"
	"testing"
	"testing/fstest"
)

func TestFileSystem_InterfaceCompliance(t *testing.T) {
	var _ fs.FS = (*FileSystem)(nil)
	var _ fs.StatFS = (*FileSystem)(nil)
	var _ fs.ReadDirFS = (*FileSystem)(nil)
	var _ fs.ReadFileFS = (*FileSystem)(nil)
}

// testLogger collects log lines.
type testLogger struct {
	lines []string
}

func (l *testLogger) Printf(format string, v ...interface{}) {
	l.lines = append(l.lines, format)
}

func newTestConfig() *Config {
	return &Config{
		Server:   "fileserver",
		Share:    "share",
		Username: "alice",
		Password: "secret",
	}
}

func setupMockFS(t *testing.T) (*FileSystem, *MockEngine) {
	t.Helper()

	engine := NewMockEngine("share")
	engine.AddDir("/share/docs")
	engine.AddFile("/share/docs/report.txt", []byte("quarterly numbers"), 0)
	engine.AddFile("/share/docs/notes.txt", []byte("n"), FILE_ATTRIBUTE_READONLY)
	engine.AddFile("/share/readme.md", []byte("# readme"), 0)

	fsys, err := NewWithEngine(newTestConfig(), engine)
	if err != nil {
		t.Fatalf("NewWithEngine() error = %v", err)
	}
	t.Cleanup(func() {
		if fsys.Context().Valid() {
			fsys.Close()
		}
	})

	return fsys, engine
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config", config: nil},
		{name: "missing server", config: &Config{Share: "share", Username: "u", Password: "p"}},
		{name: "missing share", config: &Config{Server: "fileserver", Username: "u", Password: "p"}},
		{name: "missing credentials", config: &Config{Server: "fileserver", Share: "share"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewMockEngine("share")

			_, err := NewWithEngine(tt.config, engine)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewWithEngine() error = %v, want ErrInvalidConfig", err)
			}
			if engine.Allocated() != 0 {
				t.Errorf("Allocated() = %d, want 0", engine.Allocated())
			}
		})
	}
}

func TestNew_InjectCreateFault(t *testing.T) {
	engine := NewMockEngine("share")
	cfg := newTestConfig()
	cfg.InjectCreateFault = true

	_, err := NewWithEngine(cfg, engine)
	if !errors.Is(err, syscall.ENOMEM) {
		t.Errorf("NewWithEngine() error = %v, want ENOMEM", err)
	}
	if engine.Allocated() != 0 {
		t.Errorf("Allocated() = %d, want 0", engine.Allocated())
	}
}

func TestFileSystem_ReadFile(t *testing.T) {
	fsys, engine := setupMockFS(t)

	data, err := fsys.ReadFile("docs/report.txt")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "quarterly numbers" {
		t.Errorf("ReadFile() = %q, want %q", data, "quarterly numbers")
	}

	if got := engine.CountOperations(OpOpen); got != 1 {
		t.Errorf("open count = %d, want 1", got)
	}
	if got := engine.CountOperations(OpClose); got != 1 {
		t.Errorf("close count = %d, want 1", got)
	}

	auth := engine.LastAuth()
	if auth.Username != "alice" || auth.Password != "secret" {
		t.Errorf("auth = %q/%q, want alice/secret", auth.Username, auth.Password)
	}
	if auth.Server != "fileserver" || auth.Share != "share" {
		t.Errorf("auth target = //%s/%s, want //fileserver/share", auth.Server, auth.Share)
	}
}

func TestFileSystem_OpenRead(t *testing.T) {
	fsys, _ := setupMockFS(t)

	f, err := fsys.Open("readme.md")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	buf := make([]byte, 3)
	var sb strings.Builder
	for {
		n, err := f.Read(buf)
		sb.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
	if sb.String() != "# readme" {
		t.Errorf("content = %q, want %q", sb.String(), "# readme")
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Name() != "readme.md" || info.Size() != 8 {
		t.Errorf("Stat() = %s/%d, want readme.md/8", info.Name(), info.Size())
	}

	if err := f.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := f.Read(buf); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("Read() after Close error = %v, want fs.ErrClosed", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}

func TestFileSystem_OpenMissing(t *testing.T) {
	fsys, _ := setupMockFS(t)

	_, err := fsys.Open("missing.txt")
	if !errors.Is(err, syscall.ENOENT) {
		t.Errorf("Open() error = %v, want ENOENT", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open() error = %v, want fs.ErrNotExist", err)
	}

	var pe *PathError
	if !errors.As(err, &pe) || pe.Path != "missing.txt" {
		t.Errorf("Open() error = %v, want PathError for missing.txt", err)
	}
}

func TestFileSystem_Stat(t *testing.T) {
	fsys, _ := setupMockFS(t)

	tests := []struct {
		path     string
		wantName string
		wantDir  bool
		wantMode fs.FileMode
	}{
		{"docs", "docs", true, fs.ModeDir | 0o755},
		{"docs/report.txt", "report.txt", false, 0o744},
		{"docs/notes.txt", "notes.txt", false, 0o444},
		{".", ".", true, fs.ModeDir | 0o755},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			info, err := fsys.Stat(tt.path)
			if err != nil {
				t.Fatalf("Stat(%q) error = %v", tt.path, err)
			}
			if info.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", info.Name(), tt.wantName)
			}
			if info.IsDir() != tt.wantDir {
				t.Errorf("IsDir() = %v, want %v", info.IsDir(), tt.wantDir)
			}
			if info.Mode() != tt.wantMode {
				t.Errorf("Mode() = %v, want %v", info.Mode(), tt.wantMode)
			}
			if _, ok := info.Sys().(*Stat); !ok {
				t.Errorf("Sys() = %T, want *Stat", info.Sys())
			}
		})
	}
}

func TestFileSystem_StatInvalidPath(t *testing.T) {
	fsys, engine := setupMockFS(t)

	_, err := fsys.Stat("../etc/passwd")
	if !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Stat() error = %v, want ErrInvalidPath", err)
	}
	if got := engine.CountOperations(OpStat); got != 0 {
		t.Errorf("stat count = %d, want 0", got)
	}
}

func TestFileSystem_ReadDir(t *testing.T) {
	fsys, engine := setupMockFS(t)

	entries, err := fsys.ReadDir("docs")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	want := []string{"notes.txt", "report.txt"}
	if len(entries) != len(want) {
		t.Fatalf("ReadDir() returned %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Name() != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Name(), want[i])
		}
		if e.IsDir() {
			t.Errorf("entry %q IsDir() = true", e.Name())
		}
	}

	info, err := entries[1].Info()
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.Size() != int64(len("quarterly numbers")) {
		t.Errorf("Size() = %d, want %d", info.Size(), len("quarterly numbers"))
	}

	// two real entries plus "." and ".." plus the terminating call
	if got := engine.CountOperations(OpReaddirPlus2); got != 5 {
		t.Errorf("readdirplus2 count = %d, want 5", got)
	}
	if got := engine.CountOperations(OpClosedir); got != 1 {
		t.Errorf("closedir count = %d, want 1", got)
	}
}

func TestFileSystem_ReadDirRoot(t *testing.T) {
	fsys, _ := setupMockFS(t)

	entries, err := fsys.ReadDir(".")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if got := strings.Join(names, ","); got != "docs,readme.md" {
		t.Errorf("ReadDir() = %s, want docs,readme.md", got)
	}
	if !entries[0].IsDir() || entries[0].Type() != fs.ModeDir {
		t.Errorf("docs Type() = %v, want directory", entries[0].Type())
	}
}

func TestFileSystem_ReadDirNotDirectory(t *testing.T) {
	fsys, engine := setupMockFS(t)

	_, err := fsys.ReadDir("readme.md")
	if !errors.Is(err, syscall.ENOTDIR) {
		t.Errorf("ReadDir() error = %v, want ENOTDIR", err)
	}
	if got := engine.CountOperations(OpClosedir); got != 0 {
		t.Errorf("closedir count = %d, want 0", got)
	}
}

func TestFileSystem_ReadDirInjectFault(t *testing.T) {
	engine := NewMockEngine("share")
	engine.AddFile("/share/docs/report.txt", []byte("x"), 0)

	cfg := newTestConfig()
	cfg.InjectReaddirFault = true
	fsys, err := NewWithEngine(cfg, engine)
	if err != nil {
		t.Fatalf("NewWithEngine() error = %v", err)
	}
	defer fsys.Close()

	_, err = fsys.ReadDir("docs")
	if !errors.Is(err, syscall.EBADF) {
		t.Errorf("ReadDir() error = %v, want EBADF", err)
	}
	if got := engine.CountOperations(OpReaddirPlus2); got != 0 {
		t.Errorf("readdirplus2 count = %d, want 0", got)
	}
	if got := engine.CountOperations(OpClosedir); got != 1 {
		t.Errorf("closedir count = %d, want 1", got)
	}
}

func TestFileSystem_ReadDirEngineError(t *testing.T) {
	logger := &testLogger{}
	engine := NewMockEngine("share")
	engine.AddFile("/share/a.txt", nil, 0)

	cfg := newTestConfig()
	cfg.Logger = logger
	fsys, err := NewWithEngine(cfg, engine)
	if err != nil {
		t.Fatalf("NewWithEngine() error = %v", err)
	}
	defer fsys.Close()

	engine.SetOperationError(OpReaddirPlus2, syscall.EIO)

	_, err = fsys.ReadDir(".")
	if !errors.Is(err, syscall.EIO) {
		t.Errorf("ReadDir() error = %v, want EIO", err)
	}
	if len(logger.lines) < 2 {
		t.Errorf("logged %d lines, want create and readdir messages", len(logger.lines))
	}
}

func TestFileSystem_Root(t *testing.T) {
	engine := NewMockEngine("share")
	engine.AddFile("/share/data/2024/summary.csv", []byte("a,b"), 0)

	cfg := newTestConfig()
	cfg.Root = "/data/2024/"
	fsys, err := NewWithEngine(cfg, engine)
	if err != nil {
		t.Fatalf("NewWithEngine() error = %v", err)
	}
	defer fsys.Close()

	data, err := fsys.ReadFile("summary.csv")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "a,b" {
		t.Errorf("ReadFile() = %q, want %q", data, "a,b")
	}

	entries, err := fsys.ReadDir(".")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "summary.csv" {
		t.Errorf("ReadDir() = %v, want [summary.csv]", entries)
	}

	ops := engine.GetOperations()
	if want := "smb://fileserver:445/share/data/2024/summary.csv"; ops[0].Path != want {
		t.Errorf("first op path = %q, want %q", ops[0].Path, want)
	}
}

func TestFileSystem_AccountCheck(t *testing.T) {
	engine := NewMockEngine("share")
	engine.AddFile("/share/a.txt", []byte("x"), 0)
	engine.AddAccount("alice", "different")

	fsys, err := NewWithEngine(newTestConfig(), engine)
	if err != nil {
		t.Fatalf("NewWithEngine() error = %v", err)
	}
	defer fsys.Close()

	_, err = fsys.ReadFile("a.txt")
	if !errors.Is(err, syscall.EACCES) {
		t.Errorf("ReadFile() error = %v, want EACCES", err)
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Errorf("ReadFile() error = %v, want fs.ErrPermission", err)
	}
}

func TestFileSystem_Close(t *testing.T) {
	fsys, engine := setupMockFS(t)

	if err := fsys.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if engine.Live() != 0 {
		t.Errorf("Live() = %d, want 0", engine.Live())
	}
	if fsys.Context().Valid() {
		t.Error("Context().Valid() = true after Close")
	}

	if _, err := fsys.Stat("docs"); !errors.Is(err, syscall.EBADF) {
		t.Errorf("Stat() after Close error = %v, want EBADF", err)
	}
	if err := fsys.Close(); !errors.Is(err, syscall.EBADF) {
		t.Errorf("second Close() error = %v, want EBADF", err)
	}
}

func TestFileSystem_CloseInjectFault(t *testing.T) {
	engine := NewMockEngine("share")
	engine.AddFile("/share/a.txt", []byte("x"), 0)

	cfg := newTestConfig()
	cfg.InjectDestroyFault = true
	fsys, err := NewWithEngine(cfg, engine)
	if err != nil {
		t.Fatalf("NewWithEngine() error = %v", err)
	}

	// Other paths still work with a destroy fault configured.
	if _, err := fsys.ReadFile("a.txt"); err != nil {
		t.Errorf("ReadFile() error = %v", err)
	}

	if err := fsys.Close(); !errors.Is(err, syscall.EBADF) {
		t.Errorf("Close() error = %v, want EBADF", err)
	}
	if engine.Live() != 1 {
		t.Errorf("Live() = %d, want 1", engine.Live())
	}

	fsys.config.InjectDestroyFault = false
	if err := fsys.Close(); err != nil {
		t.Errorf("Close() without fault error = %v", err)
	}
	if engine.Live() != 0 {
		t.Errorf("Live() = %d, want 0", engine.Live())
	}
}

func TestFileSystem_Separator(t *testing.T) {
	fsys, _ := setupMockFS(t)
	if fsys.Separator() != '/' {
		t.Errorf("Separator() = %c, want /", fsys.Separator())
	}
}

func TestFileSystem_FSTest(t *testing.T) {
	fsys, _ := setupMockFS(t)

	if err := fstest.TestFS(fsys, "readme.md", "docs/report.txt", "docs/notes.txt"); err != nil {
		t.Fatal(err)
	}
}

func TestFileSystem_InvalidNames(t *testing.T) {
	fsys, engine := setupMockFS(t)

	names := []string{"", "/", "/.", "./.", "/readme.md", "docs/", "docs/./report.txt", "../x", "a\x00b"}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			if _, err := fsys.Open(name); !errors.Is(err, fs.ErrInvalid) || !errors.Is(err, ErrInvalidPath) {
				t.Errorf("Open(%q) error = %v, want fs.ErrInvalid", name, err)
			}
			if _, err := fsys.Stat(name); !errors.Is(err, fs.ErrInvalid) {
				t.Errorf("Stat(%q) error = %v, want fs.ErrInvalid", name, err)
			}
			if _, err := fsys.ReadDir(name); !errors.Is(err, fs.ErrInvalid) {
				t.Errorf("ReadDir(%q) error = %v, want fs.ErrInvalid", name, err)
			}
		})
	}

	if ops := engine.GetOperations(); len(ops) != 0 {
		t.Errorf("operations = %+v, want none", ops)
	}
}

func TestFileSystem_BackslashNames(t *testing.T) {
	fsys, _ := setupMockFS(t)

	data, err := fsys.ReadFile("docs\\report.txt")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "quarterly numbers" {
		t.Errorf("ReadFile() = %q, want %q", data, "quarterly numbers")
	}
}

func TestFileSystem_OpenDirectory(t *testing.T) {
	fsys, engine := setupMockFS(t)

	f, err := fsys.Open("docs")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	dir, ok := f.(fs.ReadDirFile)
	if !ok {
		t.Fatalf("Open() returned %T, want fs.ReadDirFile", f)
	}

	if _, err := dir.Read(make([]byte, 4)); !errors.Is(err, syscall.EISDIR) {
		t.Errorf("Read() on directory error = %v, want EISDIR", err)
	}

	var names []string
	for {
		entries, err := dir.ReadDir(1)
		if err == io.EOF {
			if len(entries) != 0 {
				t.Errorf("ReadDir(1) at EOF returned %d entries", len(entries))
			}
			break
		}
		if err != nil {
			t.Fatalf("ReadDir(1) error = %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("ReadDir(1) returned %d entries, want 1", len(entries))
		}
		names = append(names, entries[0].Name())
	}
	if got := strings.Join(names, ","); got != "notes.txt,report.txt" {
		t.Errorf("entries = %s, want notes.txt,report.txt", got)
	}

	if entries, err := dir.ReadDir(-1); err != nil || len(entries) != 0 {
		t.Errorf("ReadDir(-1) after EOF = %d entries, %v, want 0, nil", len(entries), err)
	}

	info, err := dir.Stat()
	if err != nil || !info.IsDir() || info.Name() != "docs" {
		t.Errorf("Stat() = %v, %v, want directory docs", info, err)
	}

	if err := dir.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if got := engine.CountOperations(OpClosedir); got != 1 {
		t.Errorf("closedir count = %d, want 1", got)
	}
	if _, err := dir.ReadDir(-1); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("ReadDir() after Close error = %v, want fs.ErrClosed", err)
	}
}

func TestFile_ReadDirOnRegularFile(t *testing.T) {
	fsys, _ := setupMockFS(t)

	f, err := fsys.OpenFile("readme.md")
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	if _, err := f.ReadDir(-1); !errors.Is(err, syscall.ENOTDIR) {
		t.Errorf("ReadDir() on file error = %v, want ENOTDIR", err)
	}
}

// unsortedDir lists names in the given order after "." and "..".
type unsortedDir struct {
	names []string
	pos   int
	entry DirEntry
}

func TestFileSystem_ReadDirSortsEntries(t *testing.T) {
	conn := &stubConnection{}
	conn.ops = &Operations{
		Opendir: func(c Connection, url string) (DirHandle, error) {
			return &unsortedDir{names: []string{".", "..", "zeta", "alpha", "mid"}}, nil
		},
		ReaddirPlus2: func(c Connection, dir DirHandle, st *Stat) (*DirEntry, error) {
			d := dir.(*unsortedDir)
			if d.pos == len(d.names) {
				return nil, io.EOF
			}
			d.entry = DirEntry{Name: d.names[d.pos]}
			d.pos++
			*st = Stat{Mode: StatModeRegular | 0o444}
			return &d.entry, nil
		},
		Closedir: func(c Connection, dir DirHandle) error { return nil },
	}

	fsys, err := NewWithEngine(newTestConfig(), stubEngine{conn: conn})
	if err != nil {
		t.Fatalf("NewWithEngine() error = %v", err)
	}
	defer fsys.Close()

	entries, err := fsys.ReadDir(".")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if got := strings.Join(names, ","); got != "alpha,mid,zeta" {
		t.Errorf("ReadDir() = %s, want alpha,mid,zeta", got)
	}
}
