// Package filescan streams file content through the signature catalog
// in bounded-memory chunks and reports the first match.
package filescan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/openwpsec/guard/internal/config"
	"github.com/openwpsec/guard/internal/infra/localfs"
	"github.com/openwpsec/guard/internal/metrics"
	"github.com/openwpsec/guard/pkg/domain/report"
	"github.com/openwpsec/guard/pkg/domain/signature"
	"github.com/openwpsec/guard/pkg/logger"
)

// snippetRadius bounds the context captured around a match for audit
// logging.
const snippetRadius = 50

// Governor is the throttle consulted before each chunk read.
type Governor interface {
	Wait(ctx context.Context)
}

// Scanner reads a file in overlapping chunks and applies the catalog
// signatures per chunk, catalog order, first match wins.
type Scanner struct {
	catalog *signature.Catalog
	gov     Governor
	fs      localfs.FS
	cfg     *config.ScannerConfig
	log     *logger.Logger
}

// New creates a file content scanner.
func New(catalog *signature.Catalog, gov Governor, fs localfs.FS, cfg *config.ScannerConfig, log *logger.Logger) *Scanner {
	return &Scanner{
		catalog: catalog,
		gov:     gov,
		fs:      fs,
		cfg:     cfg,
		log:     log,
	}
}

// Scan scans the file at path against the full catalog. Expected
// conditions (unreadable file, skipped binary, oversized file) come
// back as verdicts; an I/O failure mid-scan comes back as an error,
// never as a false "safe".
func (s *Scanner) Scan(ctx context.Context, path string) (report.Verdict, error) {
	return s.scan(ctx, path, s.catalog.Active())
}

// ScanHighSeverity scans the file against only the high-severity
// signature subset (eval/exec/system family). The file policy uses
// this narrower pass under the protected theme exception.
func (s *Scanner) ScanHighSeverity(ctx context.Context, path string) (report.Verdict, error) {
	return s.scan(ctx, path, s.catalog.HighSeverity())
}

func (s *Scanner) scan(ctx context.Context, path string, sigs []signature.Signature) (report.Verdict, error) {
	start := time.Now()
	defer func() {
		metrics.FileScanDuration.Observe(time.Since(start).Seconds())
	}()

	info, err := s.fs.Stat(path)
	if err != nil {
		metrics.FilesScannedTotal.WithLabelValues("unreadable").Inc()
		return report.Verdict{Safe: false, Reason: "unreadable"}, nil
	}

	if info.Size() > s.cfg.MaxFileSize {
		s.log.Warn("file exceeds maximum scan size, not scanned",
			"path", path, "size", info.Size(), "max", s.cfg.MaxFileSize)
		metrics.FilesScannedTotal.WithLabelValues("skipped_size").Inc()
		return report.SafeVerdict("exceeds maximum scan size, not scanned"), nil
	}

	f, err := s.fs.Open(path)
	if err != nil {
		metrics.FilesScannedTotal.WithLabelValues("unreadable").Inc()
		return report.Verdict{Safe: false, Reason: "unreadable"}, nil
	}
	defer f.Close()

	scannable, err := s.sniffScannable(f)
	if err != nil {
		return report.Verdict{}, fmt.Errorf("sniff %s: %w", path, err)
	}
	if !scannable {
		metrics.FilesScannedTotal.WithLabelValues("skipped_binary").Inc()
		return report.SafeVerdict("binary content, not scanned for text patterns"), nil
	}

	verdict, err := s.scanChunks(ctx, f, info.Size(), sigs)
	if err != nil {
		metrics.FilesScannedTotal.WithLabelValues("error").Inc()
		return report.Verdict{}, fmt.Errorf("scan %s: %w", path, err)
	}

	if verdict.Safe {
		metrics.FilesScannedTotal.WithLabelValues("safe").Inc()
	} else {
		metrics.FilesScannedTotal.WithLabelValues("unsafe").Inc()
		if verdict.Matched != nil {
			metrics.SignatureHitsTotal.WithLabelValues(
				string(verdict.Matched.Severity), string(verdict.Matched.Kind)).Inc()
		}
	}
	return verdict, nil
}

// sniffScannable classifies the file by content and rewinds the handle.
// Only text-like content plus PHP and JSON is scanned; binary content
// is not searched for text patterns.
func (s *Scanner) sniffScannable(f localfs.File) (bool, error) {
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return false, fmt.Errorf("detect mime type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("rewind after sniff: %w", err)
	}

	for t := mtype; t != nil; t = t.Parent() {
		if t.Is("text/plain") || t.Is("text/x-php") || t.Is("application/json") {
			return true, nil
		}
	}
	return false, nil
}

// ChunkSize returns the effective chunk size: 10% of the memory limit,
// clamped to the configured bounds.
func (s *Scanner) ChunkSize() int64 {
	size := s.cfg.MemoryLimit / 10
	if size < s.cfg.MinChunk {
		size = s.cfg.MinChunk
	}
	if size > s.cfg.MaxChunk {
		size = s.cfg.MaxChunk
	}
	return size
}

// scanChunks streams sequential chunks, retaining an overlap window
// between reads so a signature spanning a chunk boundary is not missed.
func (s *Scanner) scanChunks(ctx context.Context, f localfs.File, size int64, sigs []signature.Signature) (report.Verdict, error) {
	chunkSize := s.ChunkSize()
	if size <= chunkSize {
		// Whole file fits in one chunk.
		chunkSize = size
	}
	if chunkSize == 0 {
		return report.SafeVerdict("empty file"), nil
	}

	buf := make([]byte, chunkSize)
	var pos int64

	for {
		if err := ctx.Err(); err != nil {
			return report.Verdict{}, err
		}

		s.gov.Wait(ctx)

		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return report.Verdict{}, fmt.Errorf("read chunk at %d: %w", pos, err)
		}
		if n == 0 {
			break
		}

		chunk := buf[:n]
		if v, matched := matchChunk(sigs, chunk, pos); matched {
			return v, nil
		}

		if pos+int64(n) >= size || int64(n) < chunkSize {
			break
		}

		// Step back by the overlap window before the next read.
		pos += int64(n) - s.cfg.Overlap
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return report.Verdict{}, fmt.Errorf("seek to %d: %w", pos, err)
		}
	}

	return report.SafeVerdict("no signature matched"), nil
}

// matchChunk tests signatures in catalog order against one chunk. The
// reported offset is absolute (chunk start plus in-chunk offset).
func matchChunk(sigs []signature.Signature, chunk []byte, base int64) (report.Verdict, bool) {
	for _, sig := range sigs {
		loc := sig.Pattern.FindIndex(chunk)
		if loc == nil {
			continue
		}

		begin := loc[0] - snippetRadius
		if begin < 0 {
			begin = 0
		}
		end := loc[1] + snippetRadius
		if end > len(chunk) {
			end = len(chunk)
		}

		return report.UnsafeVerdict(sig, base+int64(loc[0]), string(chunk[begin:end])), true
	}
	return report.Verdict{}, false
}
