package backup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
)

// FS is the filesystem surface the backup manager needs.
type FS interface {
	CopyFile(src, dst string) error
	Exists(path string) (bool, error)
	Size(path string) (int64, error)
	Remove(path string) error
	Rename(oldPath, newPath string) error
	ReadDir(dir string) ([]fs.DirEntry, error)
	Open(path string) (io.ReadCloser, error)
	MkdirAll(dir string) error
}

// OSFS implements FS on the local disk.
type OSFS struct{}

// CopyFile copies src to dst, creating or truncating dst, and syncs it to disk.
func (OSFS) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying file contents: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("syncing destination file: %w", err)
	}
	return out.Close()
}

func (OSFS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (OSFS) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}

// Remove deletes path; a missing file is not an error.
func (OSFS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (OSFS) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (OSFS) ReadDir(dir string) ([]fs.DirEntry, error) {
	return os.ReadDir(dir)
}

func (OSFS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (OSFS) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0755)
}
