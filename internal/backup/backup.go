package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/maloquacious/sheetkeep/internal/logger"
)

const (
	// Marker separates the datastore file name from the backup timestamp.
	Marker = ".backup-"

	timeLayout = "20060102T150405.000Z"

	// verifyPrefix is how many leading bytes of a copy are compared with the source.
	verifyPrefix = 4096
)

// auxSuffixes are SQLite side files that belong to the datastore's on-disk state.
var auxSuffixes = []string{"-wal", "-journal"}

// Info describes one backup on disk.
type Info struct {
	Path    string    `json:"path"`
	Created time.Time `json:"created"`
	Size    int64     `json:"size"`
}

// Manager creates, restores, lists and prunes datastore backups.
type Manager struct {
	fs  FS
	dir string
	log logger.Logger

	now   func() time.Time
	token func() string
}

// NewManager returns a Manager. An empty dir stores backups next to the datastore.
func NewManager(fsys FS, dir string, log logger.Logger) *Manager {
	if fsys == nil {
		fsys = OSFS{}
	}
	return &Manager{
		fs:  fsys,
		dir: dir,
		log: logger.OrDefault(log),
		now: time.Now,
		token: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		},
	}
}

// Dir returns the directory backups of filePath are written to.
func (m *Manager) Dir(filePath string) string {
	if m.dir != "" {
		return m.dir
	}
	return filepath.Dir(filePath)
}

// Name builds the backup file name for a datastore file.
func Name(filePath string, created time.Time, token string) string {
	return filepath.Base(filePath) + Marker + created.UTC().Format(timeLayout) + "-" + token
}

// ParseName extracts the creation time from a backup file name of the datastore base name.
func ParseName(base, name string) (time.Time, error) {
	prefix := base + Marker
	if !strings.HasPrefix(name, prefix) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotBackup, name)
	}
	rest := strings.TrimPrefix(name, prefix)
	stamp, _, ok := strings.Cut(rest, "-")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s has no run token", ErrNotBackup, name)
	}
	created, err := time.Parse(timeLayout, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrNotBackup, name, err)
	}
	return created, nil
}

// Create copies the datastore and its side files to a new backup and verifies the copy.
// The live datastore must be quiesced.
func (m *Manager) Create(filePath string) (string, error) {
	size, err := m.fs.Size(filePath)
	if err != nil {
		return "", newFSError(filePath, "stat", err)
	}
	if size == 0 {
		return "", newFSError(filePath, "verify", fmt.Errorf("%w: datastore file is empty", ErrVerification))
	}

	dir := m.Dir(filePath)
	if err := m.fs.MkdirAll(dir); err != nil {
		return "", newFSError(dir, "mkdir", err)
	}

	backupPath := filepath.Join(dir, Name(filePath, m.now(), m.token()))
	if exists, err := m.fs.Exists(backupPath); err != nil {
		return "", newFSError(backupPath, "stat", err)
	} else if exists {
		return "", newFSError(backupPath, "create", errors.New("backup path already exists"))
	}

	written := []string{backupPath}
	cleanup := func() {
		for _, path := range written {
			if err := m.fs.Remove(path); err != nil {
				m.log.Warn("failed to remove incomplete backup %s: %v", path, err)
			}
		}
	}

	if err := m.copyVerified(filePath, backupPath); err != nil {
		cleanup()
		return "", err
	}

	for _, suffix := range auxSuffixes {
		exists, err := m.fs.Exists(filePath + suffix)
		if err != nil {
			cleanup()
			return "", newFSError(filePath+suffix, "stat", err)
		}
		if !exists {
			continue
		}
		auxSize, err := m.fs.Size(filePath + suffix)
		if err != nil {
			cleanup()
			return "", newFSError(filePath+suffix, "stat", err)
		}
		// a checkpointed WAL is empty; Restore drops live side files the backup lacks
		if auxSize == 0 {
			continue
		}
		written = append(written, backupPath+suffix)
		if err := m.copyVerified(filePath+suffix, backupPath+suffix); err != nil {
			cleanup()
			return "", err
		}
	}

	m.log.Info("backed up %s to %s (%s)", filePath, backupPath, humanize.Bytes(uint64(size)))
	return backupPath, nil
}

// Restore overwrites filePath with the contents of backupPath.
// No open handle may be using filePath while this runs.
func (m *Manager) Restore(backupPath, filePath string) error {
	exists, err := m.fs.Exists(backupPath)
	if err != nil {
		return newFSError(backupPath, "stat", err)
	}
	if !exists {
		return newFSError(backupPath, "restore", errors.New("backup does not exist"))
	}

	if err := m.replace(backupPath, filePath); err != nil {
		return err
	}

	for _, suffix := range auxSuffixes {
		exists, err := m.fs.Exists(backupPath + suffix)
		if err != nil {
			return newFSError(backupPath+suffix, "stat", err)
		}
		if exists {
			if err := m.replace(backupPath+suffix, filePath+suffix); err != nil {
				return err
			}
			continue
		}
		if err := m.fs.Remove(filePath + suffix); err != nil {
			return newFSError(filePath+suffix, "remove", err)
		}
	}

	// the shared-memory index describes the replaced WAL; SQLite rebuilds it
	if err := m.fs.Remove(filePath + "-shm"); err != nil {
		return newFSError(filePath+"-shm", "remove", err)
	}

	m.log.Info("restored %s from %s", filePath, backupPath)
	return nil
}

// replace copies src next to dst and renames it into place.
func (m *Manager) replace(src, dst string) error {
	tmp := dst + ".restore-tmp"
	if err := m.copyVerified(src, tmp); err != nil {
		_ = m.fs.Remove(tmp)
		return err
	}
	if err := m.fs.Rename(tmp, dst); err != nil {
		_ = m.fs.Remove(tmp)
		return newFSError(dst, "rename", err)
	}
	return nil
}

func (m *Manager) copyVerified(src, dst string) error {
	want, err := m.fs.Size(src)
	if err != nil {
		return newFSError(src, "stat", err)
	}
	if err := m.fs.CopyFile(src, dst); err != nil {
		return newFSError(dst, "copy", err)
	}
	if err := m.verify(src, dst, want); err != nil {
		return newFSError(dst, "verify", err)
	}
	return nil
}

// verify checks the copy has the source's size and leading bytes.
func (m *Manager) verify(src, dst string, want int64) error {
	got, err := m.fs.Size(dst)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: size %d, want %d", ErrVerification, got, want)
	}

	srcHead, err := m.head(src)
	if err != nil {
		return err
	}
	dstHead, err := m.head(dst)
	if err != nil {
		return err
	}
	if !bytes.Equal(srcHead, dstHead) {
		return fmt.Errorf("%w: content differs from source", ErrVerification)
	}
	return nil
}

func (m *Manager) head(path string) ([]byte, error) {
	f, err := m.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf, err := io.ReadAll(io.LimitReader(f, verifyPrefix))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return buf, nil
}

// List returns the backups of filePath, newest first.
func (m *Manager) List(filePath string) ([]Info, error) {
	dir := m.Dir(filePath)
	entries, err := m.fs.ReadDir(dir)
	if err != nil {
		if exists, _ := m.fs.Exists(dir); !exists {
			return nil, nil
		}
		return nil, newFSError(dir, "list", err)
	}

	base := filepath.Base(filePath)
	var backups []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || isAux(name) || strings.HasSuffix(name, ".restore-tmp") {
			continue
		}
		created, err := ParseName(base, name)
		if err != nil {
			continue
		}
		path := filepath.Join(dir, name)
		size, err := m.fs.Size(path)
		if err != nil {
			return nil, newFSError(path, "stat", err)
		}
		backups = append(backups, Info{Path: path, Created: created, Size: size})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].Created.Equal(backups[j].Created) {
			return backups[i].Path > backups[j].Path
		}
		return backups[i].Created.After(backups[j].Created)
	})
	return backups, nil
}

// Prune removes all but the newest keep backups of filePath and returns the removed paths.
func (m *Manager) Prune(filePath string, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative, got %d", keep)
	}
	backups, err := m.List(filePath)
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	var removed []string
	for _, b := range backups[keep:] {
		for _, path := range append([]string{b.Path}, auxPaths(b.Path)...) {
			if err := m.fs.Remove(path); err != nil {
				return removed, newFSError(path, "remove", err)
			}
		}
		removed = append(removed, b.Path)
		m.log.Debug("pruned backup %s", b.Path)
	}
	return removed, nil
}

func isAux(name string) bool {
	for _, suffix := range auxSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func auxPaths(path string) []string {
	paths := make([]string, 0, len(auxSuffixes))
	for _, suffix := range auxSuffixes {
		paths = append(paths, path+suffix)
	}
	return paths
}
