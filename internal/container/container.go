package container

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/dmarkova/procureflow/internal/application/port"
	"github.com/dmarkova/procureflow/internal/application/service"
	"github.com/dmarkova/procureflow/internal/config"
	"github.com/dmarkova/procureflow/internal/infrastructure/external/lark"
	"github.com/dmarkova/procureflow/internal/infrastructure/external/openai"
	"github.com/dmarkova/procureflow/internal/infrastructure/persistence/repository"
	"github.com/dmarkova/procureflow/internal/infrastructure/persistence/sqlite"
	"github.com/dmarkova/procureflow/internal/infrastructure/storage"
	"github.com/dmarkova/procureflow/internal/interfaces/http"
)

// Container wires application dependencies in order: database,
// repositories, external clients, storage, services, HTTP server.
type Container struct {
	config *config.Config
	logger *zap.Logger

	sqlDB *sql.DB
	db    *sqlite.DB

	// Repositories
	RequestRepo port.RequestRepository
	UserRepo    port.UserRepository

	// Services
	RequestService service.RequestService
	QueryService   service.QueryService
	POService      service.POService

	// HTTP
	Server *http.Server
}

// New builds the full dependency graph from configuration. The database
// must already be open and migrated.
func New(cfg *config.Config, sqlDB *sql.DB, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if sqlDB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	c := &Container{
		config: cfg,
		logger: logger,
		sqlDB:  sqlDB,
	}

	c.db = sqlite.NewDB(sqlDB, logger)
	requestRepo := repository.NewRequestRepository(c.db, logger)
	userRepo := repository.NewUserRepository(c.db, logger)
	c.RequestRepo = requestRepo
	c.UserRepo = userRepo

	fileStorage := storage.NewLocalFileStorage(cfg.Storage.BaseDir, logger)

	prompts, err := loadPrompts(cfg.OpenAI.PromptsPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	docIntel := openai.NewIntelligence(cfg.OpenAI.APIKey, cfg.OpenAI.Model, prompts, logger)

	var notifier port.Notifier
	if cfg.LarkEnabled() {
		notifier = lark.NewNotifier(lark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
		}, logger)
	} else {
		logger.Info("Lark credentials not configured, decision notifications disabled")
		notifier = lark.NoopNotifier{}
	}

	serviceLogger := &zapLoggerAdapter{logger: logger}

	c.POService = service.NewPOService(requestRepo, fileStorage, serviceLogger)
	c.RequestService = service.NewRequestService(
		requestRepo,
		fileStorage,
		docIntel,
		c.POService,
		notifier,
		cfg.OpenAI.Timeout,
		serviceLogger,
	)
	c.QueryService = service.NewQueryService(requestRepo, serviceLogger)

	c.Server = http.NewServer(
		http.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		c.RequestService,
		c.QueryService,
		c.UserRepo,
		serviceLogger,
	)

	return c, nil
}

// Close releases held resources.
func (c *Container) Close() error {
	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			return fmt.Errorf("close database: %w", err)
		}
	}
	return nil
}

// loadPrompts reads prompt templates from disk, falling back to the
// compiled-in defaults when the file is missing.
func loadPrompts(path string, logger *zap.Logger) (*openai.PromptConfig, error) {
	if path == "" {
		return openai.DefaultPrompts(), nil
	}
	prompts, err := openai.LoadPrompts(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Prompts file not found, using defaults", zap.String("path", path))
			return openai.DefaultPrompts(), nil
		}
		return nil, err
	}
	return prompts, nil
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

var _ service.Logger = (*zapLoggerAdapter)(nil)
