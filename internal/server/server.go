package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ferrow/designvault/internal/config"
	"github.com/ferrow/designvault/internal/database"
	"github.com/ferrow/designvault/internal/events"
	"github.com/ferrow/designvault/internal/logger"
	"github.com/ferrow/designvault/internal/modules/modulemanager"

	// Import all modules to trigger their registration
	_ "github.com/ferrow/designvault/internal/modules/importmodule"
	_ "github.com/ferrow/designvault/internal/modules/librarymodule"
)

var systemEventBus events.EventBus
var moduleInitialized bool

// SetupRouter configures and returns the main router
func SetupRouter() (*gin.Engine, error) {
	r := gin.Default()

	if config.Get().Server.EnableCORS {
		r.Use(corsMiddleware())
	}

	if err := initializeEventBus(); err != nil {
		return nil, err
	}
	if err := initializeModules(); err != nil {
		return nil, err
	}

	setupRoutes(r)
	modulemanager.RegisterRoutes(r)

	return r, nil
}

// corsMiddleware allows cross-origin requests from local frontends
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// initializeEventBus sets up the system-wide event bus
func initializeEventBus() error {
	if systemEventBus != nil {
		return nil
	}

	systemEventBus = events.NewEventBus(events.DefaultEventBusConfig())
	if err := systemEventBus.Start(context.Background()); err != nil {
		return err
	}
	events.SetGlobalEventBus(systemEventBus)

	systemEventBus.PublishAsync(events.NewSystemEvent(
		events.EventSystemStarted,
		"System Started",
		"DesignVault server is starting up",
	))
	return nil
}

// initializeModules sets up the module system and loads all modules
func initializeModules() error {
	if moduleInitialized {
		return nil
	}

	db := database.GetDB()
	if err := modulemanager.LoadAll(db); err != nil {
		return err
	}

	moduleInitialized = true
	logger.Info("Module system initialized with %d modules", len(modulemanager.ListModules()))
	return nil
}

// GetEventBus returns the global event bus instance
func GetEventBus() events.EventBus {
	return systemEventBus
}

// shutdowner is implemented by modules holding background services
type shutdowner interface {
	Shutdown()
}

// Shutdown stops modules with background services, then the event bus.
// Running import jobs checkpoint and pause before this returns.
func Shutdown() error {
	for _, module := range modulemanager.ListModules() {
		if s, ok := module.(shutdowner); ok {
			logger.Info("Shutting down module %s", module.ID())
			s.Shutdown()
		}
	}

	if systemEventBus != nil {
		systemEventBus.PublishAsync(events.NewSystemEvent(
			events.EventSystemStopped,
			"System Stopped",
			"DesignVault server is shutting down",
		))
		return systemEventBus.Stop(context.Background())
	}
	return nil
}
