package smbctx

import (
	"errors"
	"io"
	"io/fs"
	"syscall"
	"time"
)

// File represents a file or directory opened for reading on an SMB share.
// Exactly one of handle and dir is set while the File is open.
type File struct {
	fs     *FileSystem
	handle FileHandle
	dir    DirHandle
	path   string
	offset int64

	dirDone bool
}

var _ fs.ReadDirFile = (*File)(nil)

func (f *File) closed() bool {
	return f.handle == nil && f.dir == nil
}

// Read reads up to len(p) bytes into p.
func (f *File) Read(p []byte) (n int, err error) {
	if f.closed() {
		return 0, fs.ErrClosed
	}
	if f.dir != nil {
		return 0, wrapPathError("read", f.path, syscall.EISDIR)
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err = f.fs.ctx.Read(f.handle, p)
	if n < 0 {
		return 0, wrapPathError("read", f.path, err)
	}
	if err != nil && err != io.EOF {
		return n, wrapPathError("read", f.path, err)
	}

	f.offset += int64(n)
	if n == 0 && err == nil {
		return 0, io.EOF
	}

	return n, err
}

// ReadDir reads the next directory entries, skipping "." and "..".
// With n > 0 it returns at most n entries and io.EOF once the listing is
// exhausted. With n <= 0 it returns all remaining entries.
func (f *File) ReadDir(n int) ([]fs.DirEntry, error) {
	if f.closed() {
		return nil, fs.ErrClosed
	}
	if f.dir == nil {
		return nil, wrapPathError("readdir", f.path, syscall.ENOTDIR)
	}

	entries := make([]fs.DirEntry, 0)
	for !f.dirDone && (n <= 0 || len(entries) < n) {
		var st Stat

		entry, err := f.fs.ctx.ReaddirPlus2(f.dir, &st, f.fs.config.InjectReaddirFault)
		if errors.Is(err, io.EOF) || (entry == nil && err == nil) {
			f.dirDone = true
			break
		}
		if err != nil {
			return entries, wrapPathError("readdir", f.path, err)
		}

		// The entry is only valid until the next call, so copy what we keep.
		if entry.Name == "." || entry.Name == ".." {
			continue
		}

		entries = append(entries, &dirEntry{
			info: newFileInfo(entry.Name, &st),
		})
	}

	if n > 0 && len(entries) == 0 {
		return entries, io.EOF
	}

	return entries, nil
}

// Close closes the file or directory.
func (f *File) Close() error {
	var err error
	switch {
	case f.handle != nil:
		err = f.fs.ctx.Close(f.handle)
		f.handle = nil
	case f.dir != nil:
		err = f.fs.ctx.Closedir(f.dir)
		f.dir = nil
	default:
		return nil
	}

	if err != nil {
		return wrapPathError("close", f.path, err)
	}

	return nil
}

// Stat returns file information.
func (f *File) Stat() (fs.FileInfo, error) {
	if f.closed() {
		return nil, fs.ErrClosed
	}
	return f.fs.Stat(f.path)
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.path
}

// fileInfo implements fs.FileInfo for SMB files.
type fileInfo struct {
	name string
	stat Stat
}

func newFileInfo(name string, st *Stat) *fileInfo {
	return &fileInfo{name: name, stat: *st}
}

func (fi *fileInfo) Name() string {
	return fi.name
}

func (fi *fileInfo) Size() int64 {
	return fi.stat.Size
}

func (fi *fileInfo) Mode() fs.FileMode {
	return fi.stat.FileMode()
}

func (fi *fileInfo) ModTime() time.Time {
	return fi.stat.Mtime
}

func (fi *fileInfo) IsDir() bool {
	return fi.stat.IsDir()
}

// Sys returns the *Stat the info was built from.
func (fi *fileInfo) Sys() any {
	return &fi.stat
}

// WindowsAttributes returns the Windows file attributes.
func (fi *fileInfo) WindowsAttributes() *WindowsAttributes {
	return NewWindowsAttributes(fi.stat.Attributes)
}

// dirEntry implements fs.DirEntry.
type dirEntry struct {
	info *fileInfo
}

func (de *dirEntry) Name() string {
	return de.info.Name()
}

func (de *dirEntry) IsDir() bool {
	return de.info.IsDir()
}

func (de *dirEntry) Type() fs.FileMode {
	return de.info.Mode().Type()
}

func (de *dirEntry) Info() (fs.FileInfo, error) {
	return de.info, nil
}
