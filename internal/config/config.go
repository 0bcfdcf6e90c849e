// Package config loads engine configuration from environment variables
// and the optional rules file. Configuration is immutable input at
// process start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all engine configuration.
type Config struct {
	App        AppConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Scanner    ScannerConfig
	Policy     PolicyConfig
	Governor   GovernorConfig
	Quarantine QuarantineConfig
	Backup     BackupConfig
	Sweeper    SweeperConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool

	// SiteRoot is the CMS installation root all relative paths are
	// resolved against.
	SiteRoot string

	// WPVersion is recorded in backup manifests.
	WPVersion string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	TablePrefix     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns the host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ScannerConfig holds file content scanner configuration.
type ScannerConfig struct {
	// MaxFileSize is the largest file the scanner will read. Larger
	// files are logged and treated as not scanned, never as malicious.
	MaxFileSize int64

	// MemoryLimit is the process memory budget the chunk size is
	// derived from (10% of it, clamped to the bounds below).
	MemoryLimit int64
	MinChunk    int64
	MaxChunk    int64

	// Overlap is the window re-read between chunks so a signature
	// spanning a chunk boundary is not missed.
	Overlap int64

	// Parallelism bounds concurrent file scans in the orchestrator.
	// 1 keeps the single-threaded cooperative model.
	Parallelism int
}

// PolicyConfig holds file security policy configuration.
type PolicyConfig struct {
	// ZeroByteAllowList names files that may legitimately be empty.
	ZeroByteAllowList []string

	// ForbiddenExtensions are rejected outright.
	ForbiddenExtensions []string

	// RestrictedPaths are path prefixes the policy refuses to validate
	// (core admin/include directories, the config file).
	RestrictedPaths []string

	// ProtectedThemePaths are prefixes under which content rejections
	// are downgraded to monitoring unless a high-severity pattern hits.
	ProtectedThemePaths []string

	// KnownGoodPatterns are filename conventions (minified assets and
	// the like) accepted without the theme-exception re-scan.
	KnownGoodPatterns []string

	// SuspiciousHoursStart/End bound the mtime window treated as
	// suspicious (default midnight to 4am).
	SuspiciousHoursStart int
	SuspiciousHoursEnd   int

	// BackupDir receives timestamped copies of theme files kept under
	// the protected-theme exception.
	BackupDir string

	// TokenSecret signs the optional UI-action token gate. Empty
	// disables the gate.
	TokenSecret string
	TokenTTL    time.Duration
}

// GovernorConfig holds resource governor configuration.
type GovernorConfig struct {
	CPUThreshold     float64
	MemoryPercent    float64
	HourlyQuota      int
	PeakHoursStart   int
	PeakHoursEnd     int
	ThrottleInterval time.Duration
}

// QuarantineConfig holds quarantine destination configuration.
type QuarantineConfig struct {
	Dir              string
	MaxSizeBytes     int64
	RetentionDays    int
	CleanupBatchSize int
}

// BackupConfig holds backup subsystem configuration.
type BackupConfig struct {
	// Dir receives whole-table dump files and manifests.
	Dir string

	// RetentionDays bounds how long dumps and manifests are kept.
	RetentionDays int

	// RowBackupTTL bounds how long row backups from a remediation run
	// remain restorable.
	RowBackupTTL time.Duration

	// RecentListSize is how many backup-ID references are retained for
	// operator listing.
	RecentListSize int
}

// SweeperConfig holds the retention sweeper schedule.
type SweeperConfig struct {
	Enabled bool
	// Spec is a cron expression; default runs daily at 03:30.
	Spec string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:      getEnv("APP_NAME", "guard"),
			Env:       getEnv("APP_ENV", "development"),
			Debug:     getEnvBool("APP_DEBUG", false),
			SiteRoot:  getEnv("GUARD_SITE_ROOT", "."),
			WPVersion: getEnv("GUARD_WP_VERSION", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "guard"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "wordpress"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			TablePrefix:     getEnv("DB_TABLE_PREFIX", "wp_"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Scanner: ScannerConfig{
			MaxFileSize: getEnvInt64("SCANNER_MAX_FILE_SIZE", 100<<20),
			MemoryLimit: getEnvInt64("SCANNER_MEMORY_LIMIT", 128<<20),
			MinChunk:    getEnvInt64("SCANNER_MIN_CHUNK", 1<<20),
			MaxChunk:    getEnvInt64("SCANNER_MAX_CHUNK", 10<<20),
			Overlap:     getEnvInt64("SCANNER_OVERLAP", 1<<10),
			Parallelism: getEnvInt("SCANNER_PARALLELISM", 1),
		},
		Policy: PolicyConfig{
			ZeroByteAllowList:    getEnvList("POLICY_ZERO_BYTE_ALLOW", []string{"index.php", ".htaccess", "robots.txt"}),
			ForbiddenExtensions:  getEnvList("POLICY_FORBIDDEN_EXT", []string{".phtml", ".php3", ".php4", ".php5", ".pht", ".cgi", ".pl", ".sh", ".bash", ".exe", ".com", ".bat", ".zip", ".tar", ".gz", ".rar"}),
			RestrictedPaths:      getEnvList("POLICY_RESTRICTED_PATHS", []string{"wp-admin/includes", "wp-includes", "wp-config.php"}),
			ProtectedThemePaths:  getEnvList("POLICY_PROTECTED_THEME_PATHS", []string{"wp-content/themes"}),
			KnownGoodPatterns:    getEnvList("POLICY_KNOWN_GOOD_PATTERNS", []string{`\.min\.(js|css)$`, `\.bundle\.js$`, `\.map$`}),
			SuspiciousHoursStart: getEnvInt("POLICY_SUSPICIOUS_HOURS_START", 0),
			SuspiciousHoursEnd:   getEnvInt("POLICY_SUSPICIOUS_HOURS_END", 4),
			BackupDir:            getEnv("POLICY_BACKUP_DIR", "backups/themes"),
			TokenSecret:          getEnv("POLICY_TOKEN_SECRET", ""),
			TokenTTL:             getEnvDuration("POLICY_TOKEN_TTL", 15*time.Minute),
		},
		Governor: GovernorConfig{
			CPUThreshold:     getEnvFloat("GOVERNOR_CPU_THRESHOLD", 2.0),
			MemoryPercent:    getEnvFloat("GOVERNOR_MEMORY_PERCENT", 80),
			HourlyQuota:      getEnvInt("GOVERNOR_HOURLY_QUOTA", 10000),
			PeakHoursStart:   getEnvInt("GOVERNOR_PEAK_HOURS_START", 9),
			PeakHoursEnd:     getEnvInt("GOVERNOR_PEAK_HOURS_END", 18),
			ThrottleInterval: getEnvDuration("GOVERNOR_THROTTLE_INTERVAL", time.Second),
		},
		Quarantine: QuarantineConfig{
			Dir:              getEnv("QUARANTINE_DIR", "quarantine"),
			MaxSizeBytes:     getEnvInt64("QUARANTINE_MAX_SIZE", 1<<30),
			RetentionDays:    getEnvInt("QUARANTINE_RETENTION_DAYS", 30),
			CleanupBatchSize: getEnvInt("QUARANTINE_CLEANUP_BATCH", 100),
		},
		Backup: BackupConfig{
			Dir:            getEnv("BACKUP_DIR", "backups/db"),
			RetentionDays:  getEnvInt("BACKUP_RETENTION_DAYS", 7),
			RowBackupTTL:   getEnvDuration("BACKUP_ROW_TTL", time.Hour),
			RecentListSize: getEnvInt("BACKUP_RECENT_LIST_SIZE", 10),
		},
		Sweeper: SweeperConfig{
			Enabled: getEnvBool("SWEEPER_ENABLED", true),
			Spec:    getEnv("SWEEPER_CRON", "30 3 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateHours(); err != nil {
		return err
	}
	if c.Backup.RowBackupTTL <= 0 {
		return fmt.Errorf("BACKUP_ROW_TTL must be positive")
	}
	if c.Backup.RecentListSize < 1 {
		return fmt.Errorf("BACKUP_RECENT_LIST_SIZE must be at least 1")
	}
	if c.Scanner.Parallelism < 1 {
		return fmt.Errorf("SCANNER_PARALLELISM must be at least 1")
	}
	return nil
}

func (c *Config) validateLog() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if c.Log.Level != "" && !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}
	return nil
}

func (c *Config) validateScanner() error {
	if c.Scanner.MinChunk <= 0 {
		return fmt.Errorf("SCANNER_MIN_CHUNK must be positive")
	}
	if c.Scanner.MaxChunk < c.Scanner.MinChunk {
		return fmt.Errorf("SCANNER_MAX_CHUNK must be >= SCANNER_MIN_CHUNK")
	}
	if c.Scanner.Overlap < 0 || c.Scanner.Overlap >= c.Scanner.MinChunk {
		return fmt.Errorf("SCANNER_OVERLAP must be in [0, SCANNER_MIN_CHUNK)")
	}
	if c.Scanner.MaxFileSize <= 0 {
		return fmt.Errorf("SCANNER_MAX_FILE_SIZE must be positive")
	}
	return nil
}

func (c *Config) validateHours() error {
	for name, h := range map[string]int{
		"POLICY_SUSPICIOUS_HOURS_START": c.Policy.SuspiciousHoursStart,
		"POLICY_SUSPICIOUS_HOURS_END":   c.Policy.SuspiciousHoursEnd,
		"GOVERNOR_PEAK_HOURS_START":     c.Governor.PeakHoursStart,
		"GOVERNOR_PEAK_HOURS_END":       c.Governor.PeakHoursEnd,
	} {
		if h < 0 || h > 23 {
			return fmt.Errorf("%s must be an hour in [0,23], got %d", name, h)
		}
	}
	return nil
}

// CriticalTables returns the fixed critical-table list with the
// configured prefix applied.
func (c *Config) CriticalTables() []string {
	base := []string{"options", "posts", "postmeta", "users", "usermeta", "comments", "commentmeta"}
	out := make([]string, len(base))
	for i, t := range base {
		out[i] = c.Database.TablePrefix + t
	}
	return out
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
