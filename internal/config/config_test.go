package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwpsec/guard/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "guard", cfg.App.Name)
	assert.Equal(t, "wp_", cfg.Database.TablePrefix)
	assert.Equal(t, int64(1<<20), cfg.Scanner.MinChunk)
	assert.Equal(t, int64(10<<20), cfg.Scanner.MaxChunk)
	assert.Equal(t, int64(1<<10), cfg.Scanner.Overlap)
	assert.Equal(t, 0, cfg.Policy.SuspiciousHoursStart)
	assert.Equal(t, 4, cfg.Policy.SuspiciousHoursEnd)
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
	assert.Equal(t, time.Hour, cfg.Backup.RowBackupTTL)
	assert.Equal(t, "30 3 * * *", cfg.Sweeper.Spec)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DB_TABLE_PREFIX", "site5_")
	t.Setenv("SCANNER_PARALLELISM", "4")
	t.Setenv("POLICY_FORBIDDEN_EXT", ".phtml, .exe")
	t.Setenv("BACKUP_ROW_TTL", "30m")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "site5_", cfg.Database.TablePrefix)
	assert.Equal(t, 4, cfg.Scanner.Parallelism)
	assert.Equal(t, []string{".phtml", ".exe"}, cfg.Policy.ForbiddenExtensions)
	assert.Equal(t, 30*time.Minute, cfg.Backup.RowBackupTTL)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *config.Config {
		cfg, err := config.Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "default config is valid",
			mutate: func(c *config.Config) {},
		},
		{
			name:    "missing database host",
			mutate:  func(c *config.Config) { c.Database.Host = "" },
			wantErr: "database host",
		},
		{
			name:    "port out of range",
			mutate:  func(c *config.Config) { c.Database.Port = 70000 },
			wantErr: "database port",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *config.Config) { c.Log.Level = "verbose" },
			wantErr: "LOG_LEVEL",
		},
		{
			name:    "overlap at least min chunk",
			mutate:  func(c *config.Config) { c.Scanner.Overlap = c.Scanner.MinChunk },
			wantErr: "SCANNER_OVERLAP",
		},
		{
			name:    "max chunk below min chunk",
			mutate:  func(c *config.Config) { c.Scanner.MaxChunk = c.Scanner.MinChunk - 1 },
			wantErr: "SCANNER_MAX_CHUNK",
		},
		{
			name:    "suspicious hour out of range",
			mutate:  func(c *config.Config) { c.Policy.SuspiciousHoursEnd = 24 },
			wantErr: "POLICY_SUSPICIOUS_HOURS_END",
		},
		{
			name:    "parallelism below one",
			mutate:  func(c *config.Config) { c.Scanner.Parallelism = 0 },
			wantErr: "SCANNER_PARALLELISM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCriticalTables(t *testing.T) {
	t.Setenv("DB_TABLE_PREFIX", "blog_")
	cfg, err := config.Load()
	require.NoError(t, err)

	tables := cfg.CriticalTables()
	require.Len(t, tables, 7)
	assert.Contains(t, tables, "blog_options")
	assert.Contains(t, tables, "blog_usermeta")
}

func TestLoadRules(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		rules, err := config.LoadRules("")
		require.NoError(t, err)
		assert.NotEmpty(t, rules.Signatures)
		assert.Equal(t, config.DefaultSuspiciousNamePatterns(), rules.SuspiciousNamePatterns)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		content := `signatures:
  - pattern: 'eval\s*\('
    severity: critical
    description: eval call
    kind: malicious
suspicious_name_patterns:
  - cryptominer
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		rules, err := config.LoadRules(path)
		require.NoError(t, err)
		require.Len(t, rules.Signatures, 1)
		assert.Equal(t, `eval\s*\(`, rules.Signatures[0].Pattern)
		assert.Equal(t, []string{"cryptominer"}, rules.SuspiciousNamePatterns)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := config.LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("signature without severity is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		content := `signatures:
  - pattern: 'eval'
    description: eval call
    kind: malicious
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, err := config.LoadRules(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid rules file")
	})
}
