package quarantine

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwpsec/guard/internal/config"
	"github.com/openwpsec/guard/internal/infra/localfs"
	"github.com/openwpsec/guard/pkg/logger"
)

// failFS simulates a filesystem where individual operations can be
// forced to fail.
type failFS struct {
	files      map[string][]byte
	modes      map[string]fs.FileMode
	failRename bool
	failCreate bool
	failChmod  bool
	// failRemove decides per path whether Remove fails.
	failRemove func(path string) bool
}

func newFailFS() *failFS {
	return &failFS{
		files: make(map[string][]byte),
		modes: make(map[string]fs.FileMode),
	}
}

type failFile struct {
	*bytes.Reader
}

func (failFile) Close() error { return nil }

type memWriter struct {
	fs   *failFS
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *memWriter) Close() error {
	w.fs.files[w.path] = w.buf.Bytes()
	return nil
}

func (f *failFS) Stat(path string) (fs.FileInfo, error) {
	if _, ok := f.files[path]; !ok {
		return nil, os.ErrNotExist
	}
	return nil, os.ErrInvalid // not exercised by the manager
}

func (f *failFS) Open(path string) (localfs.File, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return failFile{bytes.NewReader(data)}, nil
}

func (f *failFS) Create(path string) (io.WriteCloser, error) {
	if f.failCreate && !strings.HasSuffix(path, ".write-probe") {
		return nil, os.ErrPermission
	}
	return &memWriter{fs: f, path: path}, nil
}

func (f *failFS) Rename(oldPath, newPath string) error {
	if f.failRename {
		return os.ErrPermission
	}
	data, ok := f.files[oldPath]
	if !ok {
		return os.ErrNotExist
	}
	f.files[newPath] = data
	delete(f.files, oldPath)
	return nil
}

func (f *failFS) Remove(path string) error {
	if f.failRemove != nil && f.failRemove(path) {
		return os.ErrPermission
	}
	delete(f.files, path)
	return nil
}

func (f *failFS) Chmod(path string, mode fs.FileMode) error {
	if f.failChmod {
		return os.ErrPermission
	}
	if _, ok := f.files[path]; !ok {
		return os.ErrNotExist
	}
	f.modes[path] = mode
	return nil
}

func (f *failFS) MkdirAll(string, fs.FileMode) error { return nil }

func (f *failFS) ReadDir(string) ([]fs.DirEntry, error) { return nil, nil }

func testManager(fsys localfs.FS) *Manager {
	return NewManager(&config.QuarantineConfig{
		Dir:              "quarantine",
		RetentionDays:    30,
		CleanupBatchSize: 100,
	}, fsys, logger.NewNop())
}

func TestQuarantine_MoveSucceeds(t *testing.T) {
	fsys := newFailFS()
	fsys.files["evil.php"] = []byte("<?php evil();")

	m := testManager(fsys)
	require.NoError(t, m.Quarantine("evil.php"))

	_, stillThere := fsys.files["evil.php"]
	assert.False(t, stillThere, "original must be gone after move")

	found := false
	for path := range fsys.files {
		if strings.HasPrefix(path, "quarantine/evil-") && strings.HasSuffix(path, Ext) {
			found = true
		}
	}
	assert.True(t, found, "quarantined file must carry stem, timestamp and extension")
}

func TestQuarantine_FallsBackToCopy(t *testing.T) {
	fsys := newFailFS()
	fsys.files["evil.php"] = []byte("<?php evil();")
	fsys.failRename = true

	m := testManager(fsys)
	require.NoError(t, m.Quarantine("evil.php"))

	_, stillThere := fsys.files["evil.php"]
	assert.False(t, stillThere)
}

func TestQuarantine_CopySucceedsDeleteFails_RemovesCopy(t *testing.T) {
	fsys := newFailFS()
	fsys.files["evil.php"] = []byte("<?php evil();")
	fsys.failRename = true
	fsys.failRemove = func(path string) bool { return path == "evil.php" }

	m := testManager(fsys)
	// Copy leaves no orphan; chmod lockdown then succeeds in place.
	require.NoError(t, m.Quarantine("evil.php"))

	for path := range fsys.files {
		if strings.HasPrefix(path, "quarantine/") && strings.HasSuffix(path, Ext) {
			t.Fatalf("orphaned quarantine copy left behind: %s", path)
		}
	}
	assert.Equal(t, fs.FileMode(0o000), fsys.modes["evil.php"])
}

func TestQuarantine_AllStrategiesFail(t *testing.T) {
	fsys := newFailFS()
	fsys.files["evil.php"] = []byte("<?php evil();")
	fsys.failRename = true
	fsys.failCreate = true
	fsys.failChmod = true

	m := testManager(fsys)
	err := m.Quarantine("evil.php")
	require.Error(t, err)

	// File remains in its original state.
	assert.Equal(t, []byte("<?php evil();"), fsys.files["evil.php"])
	_, changed := fsys.modes["evil.php"]
	assert.False(t, changed, "permissions must be untouched")
}

func TestQuarantine_EmptyPathIsContractError(t *testing.T) {
	m := testManager(newFailFS())
	err := m.Quarantine("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}
