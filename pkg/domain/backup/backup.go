// Package backup defines the row-level and table-level backup models
// used by the database remediator.
package backup

import "time"

// Row is a captured copy of one database row's full column values,
// taken immediately before deletion. Rows are staged in memory for the
// duration of one remediation transaction; on success they are
// persisted to a time-boxed store under a generated backup ID.
type Row struct {
	Table     string         `json:"table"`
	IDColumn  string         `json:"id_column"`
	RowID     int64          `json:"row_id"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Set is a group of row backups from one remediation run.
type Set struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Rows      []Row     `json:"rows"`
}

// Manifest describes one whole-table backup operation: which tables
// were dumped, where the dump files live, and enough environment detail
// to sanity-check a restore.
type Manifest struct {
	BackupID   string            `yaml:"backup_id" json:"backup_id"`
	Timestamp  time.Time         `yaml:"timestamp" json:"timestamp"`
	TableFiles map[string]string `yaml:"table_files" json:"table_files"`
	DBName     string            `yaml:"db_name" json:"db_name"`
	WPVersion  string            `yaml:"wp_version" json:"wp_version"`
}
