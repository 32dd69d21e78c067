package librarymodule

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/ferrow/designvault/internal/config"
	"github.com/ferrow/designvault/internal/database"
	"github.com/ferrow/designvault/internal/events"
	"github.com/ferrow/designvault/internal/logger"
	"github.com/ferrow/designvault/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	// ModuleID is the unique identifier for the library module
	ModuleID = "system.library"

	// ModuleName is the display name for the library module
	ModuleName = "Design Library"
)

// Module implements the design library as a module
type Module struct {
	db       *gorm.DB
	eventBus events.EventBus
	store    *Store
	ingestor *Ingestor
}

// NewModule creates a new library module
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
	logger.Info("Migrating design library database schema")
	return db.AutoMigrate(
		&database.Design{},
		&database.DesignFile{},
		&database.Tag{},
	)
}

// Init initializes the library module
func (m *Module) Init() error {
	logger.Info("Initializing design library module")

	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.eventBus == nil {
		m.eventBus = events.GetGlobalEventBus()
	}

	cfg := config.Get()
	m.store = NewStore(m.db, cfg.Library.PhashChunkSize)
	m.ingestor = NewIngestor(m.store, cfg.Library.StorageDir, cfg.Library.PreviewDir, m.eventBus)

	if m.store == nil || m.ingestor == nil {
		return fmt.Errorf("failed to initialize library module")
	}

	logger.Info("Design library module initialized (storage: %s)", cfg.Library.StorageDir)
	return nil
}

// GetStore returns the library store
func (m *Module) GetStore() *Store {
	if m.store == nil {
		cfg := config.Get()
		if m.db == nil {
			m.db = database.GetDB()
		}
		m.store = NewStore(m.db, cfg.Library.PhashChunkSize)
	}
	return m.store
}

// GetIngestor returns the library ingestor
func (m *Module) GetIngestor() *Ingestor {
	if m.ingestor == nil {
		cfg := config.Get()
		m.ingestor = NewIngestor(m.GetStore(), cfg.Library.StorageDir, cfg.Library.PreviewDir, m.eventBus)
	}
	return m.ingestor
}

// Register registers this module with the module system
func Register() {
	db := database.GetDB()
	bus := events.GetGlobalEventBus()
	module := NewModule(db, bus)
	modulemanager.Register(module)
}
