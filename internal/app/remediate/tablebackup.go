package remediate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/openwpsec/guard/internal/infra/localfs"
	"github.com/openwpsec/guard/pkg/domain/backup"
	"github.com/openwpsec/guard/pkg/domain/shared"
	"github.com/openwpsec/guard/pkg/logger"
	"github.com/openwpsec/guard/pkg/validator"
)

// Whole-table dump naming convention. Retention cleanup only ever
// touches files matching these; a foreign file in the backup directory
// is never deleted.
const (
	dumpPrefix     = "guard-table-"
	dumpSuffix     = ".jsonl.gz"
	manifestPrefix = "guard-manifest-"
	manifestSuffix = ".yaml"
)

var (
	dumpNameRe     = regexp.MustCompile(`^guard-table-[A-Za-z0-9_]+-[0-9a-f-]+\.jsonl\.gz$`)
	manifestNameRe = regexp.MustCompile(`^guard-manifest-[0-9a-f-]+\.yaml$`)
)

// TableBackup dumps and restores whole critical tables around bulk
// cleanup operations. Dumps are gzip-compressed JSON lines, one row per
// line, described by a YAML manifest per backup run.
type TableBackup struct {
	db            Database
	fs            localfs.FS
	idents        *validator.IdentifierValidator
	tables        []string
	dir           string
	retentionDays int
	dbName        string
	wpVersion     string
	log           *logger.Logger

	now   func() time.Time
	newID func() string
}

// NewTableBackup creates a whole-table backup manager over the given
// critical tables.
func NewTableBackup(db Database, fs localfs.FS, idents *validator.IdentifierValidator,
	tables []string, dir string, retentionDays int, dbName, wpVersion string,
	log *logger.Logger) *TableBackup {
	return &TableBackup{
		db:            db,
		fs:            fs,
		idents:        idents,
		tables:        tables,
		dir:           dir,
		retentionDays: retentionDays,
		dbName:        dbName,
		wpVersion:     wpVersion,
		log:           log,
		now:           time.Now,
		newID:         func() string { return uuid.NewString() },
	}
}

// Backup dumps every critical table and writes the manifest. A table
// that fails to dump fails the whole backup; partial dump files are
// removed.
func (b *TableBackup) Backup(ctx context.Context) (*backup.Manifest, error) {
	if err := b.fs.MkdirAll(b.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	manifest := &backup.Manifest{
		BackupID:   b.newID(),
		Timestamp:  b.now().UTC(),
		TableFiles: make(map[string]string, len(b.tables)),
		DBName:     b.dbName,
		WPVersion:  b.wpVersion,
	}

	var written []string
	cleanup := func() {
		for _, name := range written {
			if err := b.fs.Remove(filepath.Join(b.dir, name)); err != nil {
				b.log.Error("partial dump removal failed", "file", name, "error", err.Error())
			}
		}
	}

	for _, table := range b.tables {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, err
		}
		if err := b.idents.ValidateTable(table); err != nil {
			cleanup()
			return nil, fmt.Errorf("dump %s: %w", table, err)
		}

		name := dumpPrefix + table + "-" + manifest.BackupID + dumpSuffix
		if err := b.dumpTable(ctx, table, filepath.Join(b.dir, name)); err != nil {
			cleanup()
			return nil, err
		}
		written = append(written, name)
		manifest.TableFiles[table] = name
	}

	if err := b.writeManifest(manifest); err != nil {
		cleanup()
		return nil, err
	}

	b.log.Info("table backup complete", "backup_id", manifest.BackupID, "tables", len(manifest.TableFiles))
	return manifest, nil
}

func (b *TableBackup) dumpTable(ctx context.Context, table, path string) error {
	f, err := b.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create dump %s: %w", path, err)
	}

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)

	err = b.db.TableRows(ctx, table, func(row map[string]any) error {
		return enc.Encode(row)
	})
	if err != nil {
		gz.Close()
		f.Close()
		return fmt.Errorf("dump %s: %w", table, err)
	}

	if err := gz.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finish dump %s: %w", table, err)
	}
	return f.Close()
}

func (b *TableBackup) writeManifest(m *backup.Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	f, err := b.fs.Create(filepath.Join(b.dir, manifestPrefix+m.BackupID+manifestSuffix))
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	return f.Close()
}

// Restore restores the backup with the given ID: each dumped table is
// truncated and bulk re-inserted from its dump file.
func (b *TableBackup) Restore(ctx context.Context, backupID string) error {
	manifest, err := b.readManifest(backupID)
	if err != nil {
		return err
	}
	return b.restoreManifest(ctx, manifest)
}

// RestoreMostRecent restores the newest backup found in the backup
// directory.
func (b *TableBackup) RestoreMostRecent(ctx context.Context) error {
	manifests, err := b.listManifests()
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		return shared.NewDomainError("BACKUP_NONE", "no table backups found", shared.ErrNotFound)
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].Timestamp.After(manifests[j].Timestamp)
	})
	return b.restoreManifest(ctx, manifests[0])
}

func (b *TableBackup) restoreManifest(ctx context.Context, manifest *backup.Manifest) error {
	for table, file := range manifest.TableFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.idents.ValidateTable(table); err != nil {
			return fmt.Errorf("restore %s: %w", table, err)
		}
		if err := b.restoreTable(ctx, table, filepath.Join(b.dir, file)); err != nil {
			return err
		}
	}

	b.log.Info("table restore complete", "backup_id", manifest.BackupID, "tables", len(manifest.TableFiles))
	return nil
}

func (b *TableBackup) restoreTable(ctx context.Context, table, path string) error {
	f, err := b.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open dump %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read dump %s: %w", path, err)
	}
	defer gz.Close()

	if err := b.db.TruncateTable(ctx, table); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	restored := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("decode dump row %s: %w", table, err)
		}
		if err := b.db.InsertRow(ctx, table, row); err != nil {
			return fmt.Errorf("restore %s: %w", table, err)
		}
		restored++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read dump %s: %w", table, err)
	}

	b.log.Info("table restored", "table", table, "rows", restored)
	return nil
}

func (b *TableBackup) readManifest(backupID string) (*backup.Manifest, error) {
	f, err := b.fs.Open(filepath.Join(b.dir, manifestPrefix+backupID+manifestSuffix))
	if err != nil {
		return nil, shared.NewDomainError("BACKUP_NOT_FOUND",
			fmt.Sprintf("table backup %s not found", backupID), shared.ErrNotFound)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest backup.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &manifest, nil
}

func (b *TableBackup) listManifests() ([]*backup.Manifest, error) {
	entries, err := b.fs.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("list backup dir: %w", err)
	}

	var manifests []*backup.Manifest
	for _, entry := range entries {
		name := entry.Name()
		if !manifestNameRe.MatchString(name) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, manifestPrefix), manifestSuffix)
		m, err := b.readManifest(id)
		if err != nil {
			b.log.Error("unreadable manifest skipped", "file", name, "error", err.Error())
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// Cleanup deletes dumps and manifests older than the retention window.
// Only files matching this tool's own naming convention are considered.
func (b *TableBackup) Cleanup(ctx context.Context) (int, error) {
	entries, err := b.fs.ReadDir(b.dir)
	if err != nil {
		return 0, fmt.Errorf("list backup dir: %w", err)
	}

	cutoff := b.now().AddDate(0, 0, -b.retentionDays)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		name := entry.Name()
		if !dumpNameRe.MatchString(name) && !manifestNameRe.MatchString(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := b.fs.Remove(filepath.Join(b.dir, name)); err != nil {
			b.log.Error("retention removal failed", "file", name, "error", err.Error())
			continue
		}
		removed++
	}

	if removed > 0 {
		b.log.Info("backup retention cleanup", "removed", removed)
	}
	return removed, nil
}
