package smbctx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"syscall"
)

// FileSystem is a read-only view of one SMB share built on a Context.
type FileSystem struct {
	config *Config
	ctx    *Context
}

var (
	_ fs.FS         = (*FileSystem)(nil)
	_ fs.StatFS     = (*FileSystem)(nil)
	_ fs.ReadDirFS  = (*FileSystem)(nil)
	_ fs.ReadFileFS = (*FileSystem)(nil)
)

// New creates a FileSystem backed by the go-smb2 engine.
func New(config *Config) (*FileSystem, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	config.setDefaults()

	return NewWithEngine(config, &SMB2Engine{
		Workgroup:   config.Workgroup,
		Port:        config.Port,
		ConnTimeout: config.ConnTimeout,
	})
}

// NewWithEngine creates a FileSystem on top of an arbitrary engine.
func NewWithEngine(config *Config, engine Engine) (*FileSystem, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ctx, err := Create(engine, config.Domain, config.Username, config.Password, config.InjectCreateFault)
	if err != nil {
		fsysLogf(config, "create context for //%s/%s failed: %v", config.Server, config.Share, err)
		return nil, err
	}

	fsysLogf(config, "created context for //%s/%s as %q", config.Server, config.Share, config.Username)

	return &FileSystem{
		config: config,
		ctx:    ctx,
	}, nil
}

// Context returns the underlying Context.
func (fsys *FileSystem) Context() *Context {
	return fsys.ctx
}

// url builds the SMB URL for a filesystem path.
func (fsys *FileSystem) url(name string) string {
	return makeURL(fsys.config.Server, fsys.config.Port, fsys.config.Share, fsys.config.Root, name)
}

// Open opens the named file or directory for reading. Names follow
// fs.ValidPath; backslashes are accepted as separators.
func (fsys *FileSystem) Open(name string) (fs.File, error) {
	return fsys.OpenFile(name)
}

// OpenFile opens the named file or directory and returns the concrete *File.
// A directory is opened for enumeration with File.ReadDir.
func (fsys *FileSystem) OpenFile(name string) (*File, error) {
	if err := checkName(name); err != nil {
		return nil, wrapPathError("open", name, err)
	}

	handle, err := fsys.ctx.Open(fsys.url(name), os.O_RDONLY, 0)
	if errors.Is(err, syscall.EISDIR) {
		return fsys.openDir("open", name)
	}
	if err != nil {
		return nil, wrapPathError("open", name, err)
	}

	return &File{
		fs:     fsys,
		handle: handle,
		path:   name,
	}, nil
}

func (fsys *FileSystem) openDir(op, name string) (*File, error) {
	dir, err := fsys.ctx.Opendir(fsys.url(name))
	if err != nil {
		return nil, wrapPathError(op, name, err)
	}

	return &File{
		fs:   fsys,
		dir:  dir,
		path: name,
	}, nil
}

// ReadFile reads the named file and returns its contents.
func (fsys *FileSystem) ReadFile(name string) ([]byte, error) {
	f, err := fsys.OpenFile(name)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	return data, nil
}

// Stat returns file information.
func (fsys *FileSystem) Stat(name string) (fs.FileInfo, error) {
	if err := checkName(name); err != nil {
		return nil, wrapPathError("stat", name, err)
	}

	var st Stat
	if err := fsys.ctx.Stat(fsys.url(name), &st); err != nil {
		return nil, wrapPathError("stat", name, err)
	}

	return newFileInfo(baseName(name), &st), nil
}

// Lstat returns file information (same as Stat for SMB).
func (fsys *FileSystem) Lstat(name string) (fs.FileInfo, error) {
	return fsys.Stat(name)
}

// ReadDir reads the directory and returns its entries without "." and "..",
// sorted by filename.
func (fsys *FileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	if err := checkName(name); err != nil {
		return nil, wrapPathError("readdir", name, err)
	}

	f, err := fsys.openDir("readdir", name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			fsysLogf(fsys.config, "closedir %s: %v", name, err)
		}
	}()

	entries, err := f.ReadDir(-1)
	if err != nil {
		fsysLogf(fsys.config, "readdir %s: %v", name, err)
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	return entries, nil
}

// Close destroys the underlying Context.
func (fsys *FileSystem) Close() error {
	if err := fsys.ctx.Destroy(fsys.config.InjectDestroyFault); err != nil {
		fsysLogf(fsys.config, "destroy context for //%s/%s: %v", fsys.config.Server, fsys.config.Share, err)
		return err
	}
	return nil
}

// Separator returns the path separator for this filesystem.
func (fsys *FileSystem) Separator() uint8 {
	return '/'
}

// checkName rejects names that are not valid io/fs paths once backslashes
// are read as separators.
func checkName(name string) error {
	if !fs.ValidPath(strings.ReplaceAll(name, "\\", "/")) {
		return fmt.Errorf("%w: %w", ErrInvalidPath, fs.ErrInvalid)
	}
	if err := validatePath(name); err != nil {
		return fmt.Errorf("%w: %w", err, fs.ErrInvalid)
	}
	return nil
}

func baseName(name string) string {
	if name == "." {
		return name
	}
	return path.Base("/" + strings.ReplaceAll(name, "\\", "/"))
}

func fsysLogf(config *Config, format string, v ...interface{}) {
	if config.Logger != nil {
		config.Logger.Printf(format, v...)
	}
}
