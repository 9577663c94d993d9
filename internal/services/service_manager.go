package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/swad-platform/examprint-service/internal/events"
	"github.com/swad-platform/examprint-service/internal/repositories"
	"github.com/swad-platform/examprint-service/internal/validator"
)

// serviceManager implements ServiceManager.
type serviceManager struct {
	repo        repositories.Repository
	logger      *slog.Logger
	validator   *validator.Validator
	publisher   events.EventPublisher
	eligibility EligibilityChecker
	config      PrintConfig

	printService  PrintService
	exportService ExportService

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a service manager with all dependencies. A nil
// eligibility checker admits everyone.
func NewServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, eligibility EligibilityChecker, config PrintConfig) ServiceManager {
	if eligibility == nil {
		eligibility = NewAllowAllEligibility()
	}
	return &serviceManager{
		repo:        repo,
		logger:      logger,
		validator:   validator,
		publisher:   publisher,
		eligibility: eligibility,
		config:      config,
	}
}

// NewDefaultServiceManager creates a service manager with default print
// configuration.
func NewDefaultServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, eligibility EligibilityChecker) ServiceManager {
	return NewServiceManager(repo, logger, validator, publisher, eligibility, DefaultPrintConfig())
}

func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	sm.printService = NewPrintService(sm.repo, sm.logger, sm.validator, sm.publisher, sm.eligibility, sm.config)
	sm.logger.Info("Print service initialized")

	sm.exportService = NewExportService(sm.repo, sm.logger)
	sm.logger.Info("Export service initialized")

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")
	return nil
}

func (sm *serviceManager) Print() PrintService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.printService == nil {
		panic("print service not initialized")
	}
	return sm.printService
}

func (sm *serviceManager) Export() ExportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.exportService == nil {
		panic("export service not initialized")
	}
	return sm.exportService
}

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}
	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	return sm.repo.Ping(ctx)
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down")
	return nil
}
