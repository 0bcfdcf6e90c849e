package cmd

import (
	"fmt"

	"github.com/openwpsec/guard/internal/app/dbscan"
	"github.com/openwpsec/guard/internal/app/filescan"
	"github.com/openwpsec/guard/internal/app/policy"
	"github.com/openwpsec/guard/internal/app/remediate"
	"github.com/openwpsec/guard/internal/app/scanrun"
	"github.com/openwpsec/guard/internal/app/sweeper"
	"github.com/openwpsec/guard/internal/config"
	"github.com/openwpsec/guard/internal/governor"
	"github.com/openwpsec/guard/internal/infra/localfs"
	"github.com/openwpsec/guard/internal/infra/postgres"
	"github.com/openwpsec/guard/internal/infra/quarantine"
	"github.com/openwpsec/guard/internal/infra/redis"
	"github.com/openwpsec/guard/pkg/domain/signature"
	"github.com/openwpsec/guard/pkg/logger"
	"github.com/openwpsec/guard/pkg/validator"
)

// engine holds the wired components one CLI invocation needs.
type engine struct {
	cfg *config.Config
	log *logger.Logger

	db    *postgres.DB
	cache *redis.Client

	orch        *scanrun.Orchestrator
	remediator  *remediate.Remediator
	tableBackup *remediate.TableBackup
	quarantine  *quarantine.Manager
	sweeper     *sweeper.Sweeper
}

// buildEngine wires the engine from environment configuration and the
// global flags. withDB controls whether the database and backup store
// sides are connected; file-only operations run without them.
func buildEngine(withDB bool) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagSiteRoot != "" {
		cfg.App.SiteRoot = flagSiteRoot
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	rules, err := config.LoadRules(flagRules)
	if err != nil {
		return nil, err
	}
	catalog := signature.NewCatalog(rules.Signatures, log)
	if catalog.Len() == 0 {
		return nil, fmt.Errorf("no usable signatures in the active set")
	}

	fs := localfs.NewOS()
	gov := governor.New(&cfg.Governor, cfg.Scanner.MemoryLimit, log)
	idents := validator.NewIdentifierValidator(cfg.CriticalTables())

	fileScanner := filescan.New(catalog, gov, fs, &cfg.Scanner, log)
	filePolicy := policy.New(&cfg.Policy, cfg.App.SiteRoot, fileScanner, fs, log)
	quarantineMgr := quarantine.NewManager(&cfg.Quarantine, fs, log)

	e := &engine{
		cfg:        cfg,
		log:        log,
		quarantine: quarantineMgr,
	}

	var dbScanner *dbscan.Scanner
	if withDB {
		db, err := postgres.New(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		e.db = db

		// The backup store and schema cache degrade gracefully when the
		// cache backend is down: scans recompute, cleans refuse to run.
		var schemaCache dbscan.SchemaCache
		var backupStore remediate.BackupStore
		cache, err := redis.New(&cfg.Redis, log)
		if err != nil {
			log.Warn("cache backend unavailable, schema lookups uncached and row backups disabled",
				"error", err.Error())
		} else {
			e.cache = cache
			schemaCache = redis.NewSchemaCache(cache, cfg.Backup.RowBackupTTL)
			backupStore = redis.NewBackupStore(cache, cfg.Backup.RowBackupTTL, cfg.Backup.RecentListSize)
		}

		scanRepo := postgres.NewScanRepository(db)
		remRepo := postgres.NewRemediationRepository(db)

		dbScanner = dbscan.New(scanRepo, catalog, idents, schemaCache, gov,
			cfg.CriticalTables(), cfg.Database.TablePrefix, rules.SuspiciousNamePatterns, log)

		if backupStore != nil {
			e.remediator = remediate.New(remRepo, backupStore, idents, cfg.Database.TablePrefix, log)
		}
		e.tableBackup = remediate.NewTableBackup(remRepo, fs, idents, cfg.CriticalTables(),
			cfg.Backup.Dir, cfg.Backup.RetentionDays, cfg.Database.Name, cfg.App.WPVersion, log)
	}

	var dbSide scanrun.DatabaseScanner
	if dbScanner != nil {
		dbSide = dbScanner
	}
	var cleaner scanrun.RowCleaner
	if e.remediator != nil {
		cleaner = e.remediator
	}
	e.orch = scanrun.New(filePolicy, dbSide, cleaner, quarantineMgr,
		fs, cfg.App.SiteRoot, cfg.Scanner.Parallelism, log)

	if e.tableBackup == nil {
		// Retention cleanup never touches the database.
		e.tableBackup = remediate.NewTableBackup(nil, fs, idents, cfg.CriticalTables(),
			cfg.Backup.Dir, cfg.Backup.RetentionDays, cfg.Database.Name, cfg.App.WPVersion, log)
	}
	e.sweeper = sweeper.New(quarantineMgr, e.tableBackup, cfg.Sweeper.Spec, log)
	return e, nil
}

func (e *engine) close() {
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Error("database close failed", "error", err.Error())
		}
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			e.log.Error("cache close failed", "error", err.Error())
		}
	}
}
