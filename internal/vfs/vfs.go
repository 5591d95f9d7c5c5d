// Package vfs implements a minimal, non-persistent in-memory filesystem:
// a RAM-backed tree of files and directories, opened and read/written
// through file descriptors the syscall layer hands out to processes.
// There is no block device, no persistence across a reboot, and no
// symlinks; it exists to give fs_open/fs_read/fs_write/fs_close somewhere
// real to operate, the same role vfs_ramfs plays in the source tree.
package vfs

import (
	"strings"
	"sync"

	"github.com/badgeos-go/kernel/internal/kerr"
)

type nodeKind int

const (
	kindFile nodeKind = iota
	kindDir
)

type node struct {
	kind     nodeKind
	data     []byte
	children map[string]*node
}

func newDir() *node  { return &node{kind: kindDir, children: make(map[string]*node)} }
func newFile() *node { return &node{kind: kindFile} }

// FS is one mounted RAM filesystem: a root directory and the mutex
// guarding structural changes to it.
type FS struct {
	mu   sync.Mutex
	root *node
}

// New creates an empty filesystem with just a root directory.
func New() *FS {
	return &FS{root: newDir()}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}

	return strings.Split(path, "/")
}

// walk resolves path's parent directory, returning it along with the
// final path segment. create causes any missing intermediate
// directories to be created; it never creates the final segment itself.
func (fs *FS) walk(path string, create bool) (*node, string, *kerr.Error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, "", kerr.New(kerr.Param, kerr.Filesystem)
	}

	dir := fs.root
	for _, seg := range segments[:len(segments)-1] {
		child, ok := dir.children[seg]
		if !ok {
			if !create {
				return nil, "", kerr.New(kerr.NotFound, kerr.Filesystem)
			}
			child = newDir()
			dir.children[seg] = child
		}
		if child.kind != kindDir {
			return nil, "", kerr.New(kerr.IsFile, kerr.Filesystem)
		}
		dir = child
	}

	return dir, segments[len(segments)-1], nil
}

// OpenFlag controls Open's create/truncate behaviour.
type OpenFlag int

const (
	OpenRead OpenFlag = 1 << iota
	OpenWrite
	OpenCreate
	OpenTruncate
)

// File is an open handle onto one node, with its own read/write cursor.
// Multiple Files may reference the same node; each keeps an independent
// offset, the same way distinct file descriptors over one inode do.
type File struct {
	mu     sync.Mutex
	fs     *FS
	n      *node
	offset int
	flags  OpenFlag
}

// Open resolves path, optionally creating it, and returns a File handle.
func (fs *FS) Open(path string, flags OpenFlag) (*File, *kerr.Error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, name, err := fs.walk(path, flags&OpenCreate != 0)
	if err != nil {
		return nil, err
	}

	n, ok := dir.children[name]
	if !ok {
		if flags&OpenCreate == 0 {
			return nil, kerr.New(kerr.NotFound, kerr.Filesystem)
		}
		n = newFile()
		dir.children[name] = n
	}

	if n.kind != kindFile {
		return nil, kerr.New(kerr.IsDir, kerr.Filesystem)
	}

	if flags&OpenTruncate != 0 {
		n.data = nil
	}

	return &File{fs: fs, n: n, flags: flags}, nil
}

// Read copies up to len(buf) bytes starting at the file's current
// offset, advancing it, and returns the number of bytes read. Reading at
// or past end-of-file returns (0, nil), not an error.
func (f *File) Read(buf []byte) (int, *kerr.Error) {
	if f.flags&OpenRead == 0 {
		return 0, kerr.New(kerr.Perm, kerr.Filesystem)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.offset >= len(f.n.data) {
		return 0, nil
	}

	n := copy(buf, f.n.data[f.offset:])
	f.offset += n

	return n, nil
}

// Write stores buf at the file's current offset, overwriting any bytes
// already there and growing the backing buffer as needed, and advances
// the offset.
func (f *File) Write(buf []byte) (int, *kerr.Error) {
	if f.flags&OpenWrite == 0 {
		return 0, kerr.New(kerr.Perm, kerr.Filesystem)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	end := f.offset + len(buf)
	if end > len(f.n.data) {
		grown := make([]byte, end)
		copy(grown, f.n.data)
		f.n.data = grown
	}

	copy(f.n.data[f.offset:end], buf)
	f.offset = end

	return len(buf), nil
}

// Seek repositions the file's cursor to an absolute byte offset.
func (f *File) Seek(offset int) *kerr.Error {
	if offset < 0 {
		return kerr.New(kerr.Param, kerr.Filesystem)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.offset = offset

	return nil
}

// Close releases the handle. The underlying node and its data persist in
// the filesystem; only the cursor is discarded.
func (f *File) Close() {}

// Mkdir creates an empty directory at path, creating any missing
// intermediate directories.
func (fs *FS) Mkdir(path string) *kerr.Error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, name, err := fs.walk(path, true)
	if err != nil {
		return err
	}

	if _, exists := dir.children[name]; exists {
		return kerr.New(kerr.InUse, kerr.Filesystem)
	}

	dir.children[name] = newDir()

	return nil
}
