// Package localfs defines the filesystem collaborator interface and
// its local-disk implementation. The engine only relies on these
// primitives, never on disk-specific behavior.
package localfs

import (
	"io"
	"io/fs"
	"os"
)

// File is an open file handle supporting sequential and seeked reads.
type File interface {
	io.ReadSeekCloser
}

// FS is the filesystem surface the engine depends on.
type FS interface {
	Stat(path string) (fs.FileInfo, error)
	Open(path string) (File, error)
	Create(path string) (io.WriteCloser, error)
	Rename(oldPath, newPath string) error
	Remove(path string) error
	Chmod(path string, mode fs.FileMode) error
	MkdirAll(path string, mode fs.FileMode) error
	ReadDir(path string) ([]fs.DirEntry, error)
}

// OS implements FS on the local disk.
type OS struct{}

// NewOS returns the local-disk filesystem.
func NewOS() *OS {
	return &OS{}
}

func (OS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (OS) Open(path string) (File, error) {
	return os.Open(path)
}

func (OS) Create(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

func (OS) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (OS) Remove(path string) error {
	return os.Remove(path)
}

func (OS) Chmod(path string, mode fs.FileMode) error {
	return os.Chmod(path, mode)
}

func (OS) MkdirAll(path string, mode fs.FileMode) error {
	return os.MkdirAll(path, mode)
}

func (OS) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}
