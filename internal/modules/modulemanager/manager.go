// Package modulemanager wires feature modules into the application.
// Modules register themselves from init functions; LoadAll migrates and
// initializes them in registration order, honoring a disable list.
package modulemanager

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ferrow/designvault/internal/logger"
)

// Module is one self-contained feature area, such as the design library
// or the import engine. Core modules cannot be disabled.
type Module interface {
	ID() string
	Name() string
	Core() bool
	Migrate(db *gorm.DB) error
	Init() error
}

// RouteRegistrar is implemented by modules exposing HTTP endpoints
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// registry keeps modules in registration order so migrations and
// initialization run deterministically: librarymodule registers before
// importmodule through the package import graph, and its tables must
// exist first.
type registry struct {
	mu     sync.Mutex
	order  []Module
	byID   map[string]Module
	loaded bool
}

var reg = &registry{byID: make(map[string]Module)}

// Register adds a module. Called from module init functions.
func Register(m Module) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, dup := reg.byID[m.ID()]; dup {
		logger.Warn("Module %s registered twice, keeping the first", m.ID())
		return
	}
	if reg.loaded {
		logger.Warn("Module %s registered after LoadAll and will not be initialized", m.ID())
	}
	reg.byID[m.ID()] = m
	reg.order = append(reg.order, m)
	logger.Info("Module registered: %s (%s)", m.Name(), m.ID())
}

// LoadAll migrates and initializes every registered module, skipping
// those named in the disable list. Disabling a core module is refused.
func LoadAll(db *gorm.DB) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.loaded {
		return nil
	}

	disabled, err := loadDisabled()
	if err != nil {
		logger.Warn("Module config not readable, loading all modules: %v", err)
	}

	for _, m := range reg.order {
		if disabled[m.ID()] {
			if m.Core() {
				return fmt.Errorf("cannot disable core module %s", m.ID())
			}
			logger.Info("Module %s disabled by configuration", m.ID())
			continue
		}

		if err := m.Migrate(db); err != nil {
			return fmt.Errorf("migrating %s: %w", m.ID(), err)
		}
		if err := m.Init(); err != nil {
			return fmt.Errorf("initializing %s: %w", m.ID(), err)
		}
		logger.Info("Module loaded: %s", m.Name())
	}

	reg.loaded = true
	return nil
}

// RegisterRoutes mounts the routes of every module that has any
func RegisterRoutes(router *gin.Engine) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, m := range reg.order {
		if rr, ok := m.(RouteRegistrar); ok {
			rr.RegisterRoutes(router)
		}
	}
}

// ListModules returns the registered modules in registration order
func ListModules() []Module {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return append([]Module(nil), reg.order...)
}
