// Package filesystem defines the narrow storage capability interface the FTP
// engine consumes, and a root-jailed local implementation of it.
package filesystem

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// File is an open file owned by exactly one session. The engine always
// closes it on transfer completion, abort or session reset.
type File interface {
	io.Reader
	io.Writer
	io.Closer
	// Size returns the total size known at open time (0 for files opened
	// for writing).
	Size() int64
}

// FS is the filesystem surface the engine needs. All names are absolute
// FTP paths ("/dir/file"); implementations decide how those map to real
// storage.
//
// HasDirectories reports whether the backend has a real directory tree.
// Flat backends (the embedded originals ran on SPIFFS) return false, which
// makes the server accept any CWD unconditionally and reject MKD/RMD.
type FS interface {
	Open(name string) (File, error)
	Create(name string) (File, error)
	Exists(name string) bool
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.FileInfo, error)
	Remove(name string) error
	Rename(oldName, newName string) error
	MakeDir(name string) error
	RemoveDir(name string) error
	HasDirectories() bool
}

// Ensure that LocalFS implements the FS interface
var _ FS = &LocalFS{}

// LocalFS serves a local directory as the FTP root. Every name is cleaned
// and re-rooted below localDir, so path traversal cannot escape the jail.
type LocalFS struct {
	localDir string
}

// NewLocalFS returns a LocalFS rooted at localDir.
func NewLocalFS(localDir string) *LocalFS {
	return &LocalFS{localDir: localDir}
}

// resolve maps an absolute FTP path to a path below the local root.
// Cleaning after forcing a leading "/" removes any ".." escape.
func (l *LocalFS) resolve(name string) string {
	cleaned := path.Clean("/" + name)
	return filepath.Join(l.localDir, filepath.FromSlash(cleaned))
}

type localFile struct {
	*os.File
	size int64
}

func (f *localFile) Size() int64 { return f.size }

func (l *LocalFS) Open(name string) (File, error) {
	f, err := os.Open(l.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error getting file info: %w", err)
	}
	return &localFile{File: f, size: info.Size()}, nil
}

func (l *LocalFS) Create(name string) (File, error) {
	f, err := os.OpenFile(l.resolve(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("creating file error: %w", err)
	}
	return &localFile{File: f}, nil
}

func (l *LocalFS) Exists(name string) bool {
	_, err := os.Stat(l.resolve(name))
	return err == nil
}

func (l *LocalFS) Stat(name string) (fs.FileInfo, error) {
	info, err := os.Stat(l.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("error getting file info: %w", err)
	}
	return info, nil
}

func (l *LocalFS) ReadDir(name string) ([]fs.FileInfo, error) {
	entries, err := os.ReadDir(l.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("error reading directory: %w", err)
	}
	infos := make([]fs.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (l *LocalFS) Remove(name string) error {
	if err := os.Remove(l.resolve(name)); err != nil {
		return fmt.Errorf("error removing file: %w", err)
	}
	return nil
}

func (l *LocalFS) Rename(oldName, newName string) error {
	if err := os.Rename(l.resolve(oldName), l.resolve(newName)); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	return nil
}

func (l *LocalFS) MakeDir(name string) error {
	if err := os.Mkdir(l.resolve(name), 0777); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	return nil
}

func (l *LocalFS) RemoveDir(name string) error {
	if err := os.Remove(l.resolve(name)); err != nil {
		return fmt.Errorf("error removing directory: %w", err)
	}
	return nil
}

func (l *LocalFS) HasDirectories() bool { return true }
