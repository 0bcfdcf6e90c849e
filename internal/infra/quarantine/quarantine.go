// Package quarantine renders confirmed-malicious files inert. The
// record of origin lives in the quarantined filename itself (original
// stem, timestamp, unique suffix); no separate index is kept.
package quarantine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openwpsec/guard/internal/config"
	"github.com/openwpsec/guard/internal/infra/localfs"
	"github.com/openwpsec/guard/internal/metrics"
	"github.com/openwpsec/guard/pkg/domain/shared"
	"github.com/openwpsec/guard/pkg/logger"
)

// Ext is appended to quarantined files so the server never executes
// them.
const Ext = ".quarantined"

// lockdownMode strips every permission bit.
const lockdownMode = 0o000

// inertMode is the last-resort mode: no read or write for anyone.
const inertMode = 0o100

// Manager isolates malicious files using a layered fallback: move,
// then copy-and-delete, then permission lockdown.
type Manager struct {
	cfg *config.QuarantineConfig
	fs  localfs.FS
	log *logger.Logger
}

// NewManager creates a quarantine manager.
func NewManager(cfg *config.QuarantineConfig, fs localfs.FS, log *logger.Logger) *Manager {
	return &Manager{cfg: cfg, fs: fs, log: log}
}

// Quarantine makes the file at path inert. Each fallback is logged
// with the reason for falling through; if every strategy fails, the
// error surfaces to the caller and the file is left untouched.
func (m *Manager) Quarantine(path string) error {
	if path == "" {
		// A missing path is a caller bug, not a runtime condition.
		return shared.NewDomainError("QUARANTINE_NO_PATH", "path is required", shared.ErrInvalidInput)
	}

	if err := m.ensureDir(); err != nil {
		return shared.NewDomainError("QUARANTINE_DIR", "quarantine directory unavailable", err)
	}

	dest := m.destName(path)

	if err := m.fs.Rename(path, dest); err == nil {
		metrics.QuarantineTotal.WithLabelValues("move", "ok").Inc()
		m.log.Info("file quarantined by move", "path", path, "dest", dest)
		return nil
	} else {
		metrics.QuarantineTotal.WithLabelValues("move", "failed").Inc()
		m.log.Warn("quarantine move failed, trying copy", "path", path, "error", err.Error())
	}

	if err := m.copyThenDelete(path, dest); err == nil {
		metrics.QuarantineTotal.WithLabelValues("copy", "ok").Inc()
		m.log.Info("file quarantined by copy", "path", path, "dest", dest)
		return nil
	} else {
		metrics.QuarantineTotal.WithLabelValues("copy", "failed").Inc()
		m.log.Warn("quarantine copy failed, trying permission lockdown", "path", path, "error", err.Error())
	}

	if err := m.fs.Chmod(path, lockdownMode); err == nil {
		metrics.QuarantineTotal.WithLabelValues("chmod", "ok").Inc()
		m.log.Info("file neutralized in place (mode 0000)", "path", path)
		return nil
	} else {
		m.log.Warn("permission strip failed, trying inert mode", "path", path, "error", err.Error())
	}

	if err := m.fs.Chmod(path, inertMode); err == nil {
		metrics.QuarantineTotal.WithLabelValues("chmod", "ok").Inc()
		m.log.Info("file neutralized in place (inert mode)", "path", path)
		return nil
	}

	metrics.QuarantineTotal.WithLabelValues("chmod", "failed").Inc()
	return shared.NewDomainError("QUARANTINE_FAILED",
		fmt.Sprintf("all quarantine strategies failed for %s, file remains unremediated", path),
		shared.ErrInternal)
}

// ensureDir verifies the quarantine destination exists and is
// writable. Without a destination there is nothing to fall back to.
func (m *Manager) ensureDir() error {
	if err := m.fs.MkdirAll(m.cfg.Dir, 0o700); err != nil {
		return fmt.Errorf("create quarantine dir: %w", err)
	}

	probe := filepath.Join(m.cfg.Dir, ".write-probe")
	w, err := m.fs.Create(probe)
	if err != nil {
		return fmt.Errorf("quarantine dir not writable: %w", err)
	}
	w.Close()
	_ = m.fs.Remove(probe)
	return nil
}

// destName builds the quarantine destination: original stem, timestamp
// and a unique suffix, under an extension that prevents execution.
func (m *Manager) destName(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("%s-%s-%s%s",
		stem,
		time.Now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8],
		Ext,
	)
	return filepath.Join(m.cfg.Dir, name)
}

// copyThenDelete copies path to dest and removes the original. If the
// original cannot be removed after a successful copy, the copy is
// removed too so no duplicate state is left behind.
func (m *Manager) copyThenDelete(path, dest string) error {
	src, err := m.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := m.fs.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = m.fs.Remove(dest)
		return fmt.Errorf("copy content: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = m.fs.Remove(dest)
		return fmt.Errorf("flush destination: %w", err)
	}

	if err := m.fs.Remove(path); err != nil {
		_ = m.fs.Remove(dest)
		return fmt.Errorf("remove original after copy: %w", err)
	}
	return nil
}

// Sweep removes quarantined files older than the retention window, at
// most CleanupBatchSize per call. Only files carrying the quarantine
// extension are considered, never a blind directory wipe.
func (m *Manager) Sweep() (int, error) {
	entries, err := m.fs.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read quarantine dir: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -m.cfg.RetentionDays)
	removed := 0

	for _, entry := range entries {
		if removed >= m.cfg.CleanupBatchSize {
			break
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Ext) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(m.cfg.Dir, entry.Name())
		if err := m.fs.Remove(path); err != nil {
			m.log.Warn("failed to remove expired quarantine file", "path", path, "error", err.Error())
			continue
		}
		removed++
	}

	return removed, nil
}
