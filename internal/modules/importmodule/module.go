package importmodule

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/ferrow/designvault/internal/config"
	"github.com/ferrow/designvault/internal/database"
	"github.com/ferrow/designvault/internal/events"
	"github.com/ferrow/designvault/internal/logger"
	"github.com/ferrow/designvault/internal/modules/importmodule/importer"
	"github.com/ferrow/designvault/internal/modules/librarymodule"
	"github.com/ferrow/designvault/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	// ModuleID is the unique identifier for the import module
	ModuleID = "system.import"

	// ModuleName is the display name for the import module
	ModuleName = "Bulk Import"
)

// Module wires the bulk import engine into the application: the job
// supervisor, the scheduler, the drop-folder watcher, and the system
// load monitor.
type Module struct {
	db       *gorm.DB
	eventBus events.EventBus

	manager   *importer.Manager
	scheduler *importer.Scheduler
	monitor   *importer.SystemMonitor
	watcher   *importer.WatchService
}

// NewModule creates a new import module
func NewModule(db *gorm.DB, eventBus events.EventBus) *Module {
	return &Module{
		db:       db,
		eventBus: eventBus,
	}
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return true
}

// Migrate performs any necessary database migrations
func (m *Module) Migrate(db *gorm.DB) error {
	logger.Info("Migrating import engine database schema")
	return db.AutoMigrate(
		&database.ImportJob{},
		&database.ImportLog{},
	)
}

// Init initializes the import module. Orphaned jobs from a previous
// process are recovered here, and the scheduler and watcher come up
// according to configuration.
func (m *Module) Init() error {
	logger.Info("Initializing bulk import module")

	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.eventBus == nil {
		m.eventBus = events.GetGlobalEventBus()
	}

	cfg := config.Get()

	libraryStore := librarymodule.NewStore(m.db, cfg.Library.PhashChunkSize)
	ingestor := librarymodule.NewIngestor(libraryStore, cfg.Library.StorageDir, cfg.Library.PreviewDir, m.eventBus)

	m.manager = importer.NewManager(m.db, m.eventBus, libraryStore, ingestor,
		cfg.Import.MaxActiveJobs, cfg.Import.RetryBaseDelay)
	if m.manager == nil {
		return fmt.Errorf("failed to initialize import manager")
	}

	if err := m.manager.RecoverOrphanedJobs(cfg.Import.AutoResume); err != nil {
		logger.Error("Orphaned job recovery failed: %v", err)
	}

	m.scheduler = importer.NewScheduler(m.manager, m.eventBus, cfg.Import.SchedulerInterval)
	if err := m.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start import scheduler: %w", err)
	}

	m.monitor = importer.NewSystemMonitor(cfg.Import.MonitorInterval)
	m.monitor.Start()

	if cfg.Watcher.Enabled && len(cfg.Watcher.DropDirs) > 0 {
		m.watcher = importer.NewWatchService(cfg.Watcher.DropDirs, cfg.Watcher.SettleInterval, m.eventBus)
		if err := m.watcher.Start(); err != nil {
			logger.Warn("Drop-folder watcher not started: %v", err)
			m.watcher = nil
		}
	}

	logger.Info("Bulk import module initialized (max active jobs: %d)", cfg.Import.MaxActiveJobs)
	return nil
}

// Shutdown pauses running jobs and stops the background services
func (m *Module) Shutdown() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	if m.monitor != nil {
		m.monitor.Stop()
	}
	if m.manager != nil {
		m.manager.Shutdown()
	}
}

// GetManager returns the job supervisor
func (m *Module) GetManager() *importer.Manager {
	return m.manager
}

// Register registers this module with the module system
func Register() {
	db := database.GetDB()
	bus := events.GetGlobalEventBus()
	module := NewModule(db, bus)
	modulemanager.Register(module)
}
