package filescan

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwpsec/guard/internal/config"
	"github.com/openwpsec/guard/internal/infra/localfs"
	"github.com/openwpsec/guard/pkg/domain/signature"
	"github.com/openwpsec/guard/pkg/logger"
)

// memFS is an in-memory filesystem collaborator for tests.
type memFS struct {
	files map[string][]byte
}

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

type memFileInfo struct {
	name string
	size int64
}

func (i memFileInfo) Name() string       { return i.name }
func (i memFileInfo) Size() int64        { return i.size }
func (i memFileInfo) Mode() fs.FileMode  { return 0o644 }
func (i memFileInfo) ModTime() time.Time { return time.Time{} }
func (i memFileInfo) IsDir() bool        { return false }
func (i memFileInfo) Sys() any           { return nil }

func (m *memFS) Stat(path string) (fs.FileInfo, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return memFileInfo{name: path, size: int64(len(data))}, nil
}

func (m *memFS) Open(path string) (localfs.File, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return memFile{bytes.NewReader(data)}, nil
}

func (m *memFS) Create(string) (io.WriteCloser, error) { return nil, os.ErrPermission }
func (m *memFS) Rename(string, string) error           { return os.ErrPermission }
func (m *memFS) Remove(string) error                   { return os.ErrPermission }
func (m *memFS) Chmod(string, fs.FileMode) error       { return os.ErrPermission }
func (m *memFS) MkdirAll(string, fs.FileMode) error    { return os.ErrPermission }
func (m *memFS) ReadDir(string) ([]fs.DirEntry, error) { return nil, os.ErrPermission }

type nopGovernor struct{}

func (nopGovernor) Wait(context.Context) {}

func testCatalog(t *testing.T) *signature.Catalog {
	t.Helper()
	return signature.NewCatalog(signature.DefaultDefinitions(), logger.NewNop())
}

func testScanner(t *testing.T, fsys localfs.FS, cfg *config.ScannerConfig) *Scanner {
	t.Helper()
	if cfg == nil {
		cfg = &config.ScannerConfig{
			MaxFileSize: 100 << 20,
			MemoryLimit: 128 << 20,
			MinChunk:    1 << 20,
			MaxChunk:    10 << 20,
			Overlap:     1 << 10,
		}
	}
	return New(testCatalog(t), nopGovernor{}, fsys, cfg, logger.NewNop())
}

func TestScan_EvalBase64Flagged(t *testing.T) {
	content := `<?php $x = 1; eval(base64_decode("aGVsbG8=")); ?>`
	fsys := &memFS{files: map[string][]byte{"evil.php": []byte(content)}}
	s := testScanner(t, fsys, nil)

	v, err := s.Scan(context.Background(), "evil.php")
	require.NoError(t, err)

	assert.False(t, v.Safe)
	assert.Equal(t, signature.SeverityCritical, v.Severity)
	assert.Equal(t, int64(strings.Index(content, "eval")), v.Offset)
	assert.Contains(t, v.ContextSnippet, "eval(base64_decode")
}

func TestScan_CleanFileIsSafe(t *testing.T) {
	content := "<?php\necho 'hello world';\n"
	fsys := &memFS{files: map[string][]byte{"index.php": []byte(content)}}
	s := testScanner(t, fsys, nil)

	v, err := s.Scan(context.Background(), "index.php")
	require.NoError(t, err)
	assert.True(t, v.Safe)
}

func TestScan_UnreadableFile(t *testing.T) {
	s := testScanner(t, &memFS{files: map[string][]byte{}}, nil)

	v, err := s.Scan(context.Background(), "missing.php")
	require.NoError(t, err)
	assert.False(t, v.Safe)
	assert.Equal(t, "unreadable", v.Reason)
}

func TestScan_OversizedFileSkipped(t *testing.T) {
	content := bytes.Repeat([]byte("a"), 2048)
	fsys := &memFS{files: map[string][]byte{"big.txt": content}}
	s := testScanner(t, fsys, &config.ScannerConfig{
		MaxFileSize: 1024,
		MemoryLimit: 128 << 20,
		MinChunk:    1 << 20,
		MaxChunk:    10 << 20,
		Overlap:     1 << 10,
	})

	v, err := s.Scan(context.Background(), "big.txt")
	require.NoError(t, err)
	assert.True(t, v.Safe)
	assert.Contains(t, v.Reason, "not scanned")
}

func TestScan_BinaryContentSkipped(t *testing.T) {
	content := append([]byte{0x7f, 'E', 'L', 'F', 0x00, 0x01, 0x02}, bytes.Repeat([]byte{0x00}, 64)...)
	fsys := &memFS{files: map[string][]byte{"blob.bin": content}}
	s := testScanner(t, fsys, nil)

	v, err := s.Scan(context.Background(), "blob.bin")
	require.NoError(t, err)
	assert.True(t, v.Safe)
	assert.Contains(t, v.Reason, "binary")
}

func TestScan_ChunkBoundaryStraddle(t *testing.T) {
	// Chunk size clamps to 256; place the signature across the first
	// chunk boundary, well within the 64-byte overlap window.
	cfg := &config.ScannerConfig{
		MaxFileSize: 100 << 20,
		MemoryLimit: 10, // clamps chunk to MinChunk
		MinChunk:    256,
		MaxChunk:    256,
		Overlap:     64,
	}

	payload := `eval(base64_decode("payload"))`
	pad := strings.Repeat("a", 256-10)
	content := "<?php " + pad[:256-len("<?php ")-10] + payload + " more text here"
	require.Greater(t, len(content), 256, "content must span two chunks")

	fsys := &memFS{files: map[string][]byte{"cross.php": []byte(content)}}
	chunked := New(testCatalog(t), nopGovernor{}, fsys, cfg, logger.NewNop())

	chunkedVerdict, err := chunked.Scan(context.Background(), "cross.php")
	require.NoError(t, err)

	// Round trip: chunked result matches a single-shot scan.
	single := testScanner(t, fsys, nil)
	singleVerdict, err := single.Scan(context.Background(), "cross.php")
	require.NoError(t, err)

	assert.False(t, chunkedVerdict.Safe)
	assert.Equal(t, singleVerdict.Safe, chunkedVerdict.Safe)
	assert.Equal(t, singleVerdict.MatchedPattern, chunkedVerdict.MatchedPattern)
	assert.Equal(t, singleVerdict.Offset, chunkedVerdict.Offset)
}

func TestScan_CancelledContext(t *testing.T) {
	fsys := &memFS{files: map[string][]byte{"a.php": []byte("<?php echo 1;")}}
	s := testScanner(t, fsys, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx, "a.php")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChunkSize_Clamping(t *testing.T) {
	tests := []struct {
		name        string
		memoryLimit int64
		want        int64
	}{
		{"clamps to min", 1 << 20, 1 << 20},
		{"ten percent of limit", 50 << 20, 5 << 20},
		{"clamps to max", 1 << 30, 10 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testScanner(t, &memFS{}, &config.ScannerConfig{
				MaxFileSize: 100 << 20,
				MemoryLimit: tt.memoryLimit,
				MinChunk:    1 << 20,
				MaxChunk:    10 << 20,
				Overlap:     1 << 10,
			})
			assert.Equal(t, tt.want, s.ChunkSize())
		})
	}
}
