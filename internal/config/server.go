package config

import (
	"fmt"

	classificationHandler "InventoryVision/internal/api/classification/handler"
	classificationService "InventoryVision/internal/api/classification/service"
	"InventoryVision/internal/middleware"
	"InventoryVision/pkg/detector"
	"InventoryVision/pkg/detector/onnx"
	"InventoryVision/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type ServerOption func(*Server) error

type Server struct {
	engine        *fiber.App
	log           *logrus.Logger
	middleware    middleware.Middleware
	utils         utils.IUtils
	env           *Env
	backend       detector.Backend
	backendLoaded bool
	handlers      []handler
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.env == nil {
		return nil, fmt.Errorf("env is required")
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log)
	}
	if server.utils == nil {
		server.utils = utils.New()
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithEnv(env *Env) ServerOption {
	return func(s *Server) error {
		s.env = env
		return nil
	}
}

// WithDetectionBackend loads the backend configured in env. It never fails:
// a backend that cannot be loaded leaves the server in simulated mode.
func WithDetectionBackend() ServerOption {
	return func(s *Server) error {
		if s.log == nil || s.env == nil {
			return fmt.Errorf("logger and env must be initialized before the detection backend")
		}
		s.backend = LoadDetectionBackend(s.env, s.log)
		s.backendLoaded = true
		return nil
	}
}

// WithBackend injects an already resolved backend.
func WithBackend(backend detector.Backend) ServerOption {
	return func(s *Server) error {
		s.backend = backend
		s.backendLoaded = true
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	if !s.backendLoaded {
		s.backend = detector.Unavailable(s.env.ModelPath, false, fmt.Errorf("no detection backend configured"))
		s.backendLoaded = true
	}

	// Classification
	classificationServices := classificationService.NewClassificationService(
		s.log,
		s.backend,
		classificationService.WithBatchWorkers(s.env.BatchWorkers),
		classificationService.WithBatchTimeout(s.env.BatchTimeout),
		classificationService.WithMaxFileSize(s.env.MaxFileBytes()),
		classificationService.WithMaxImagePixels(s.env.MaxImagePixels),
	)
	classificationHandlers := classificationHandler.New(s.log, s.middleware, classificationServices, s.utils, s.env.RequestTimeout)

	s.engine.Use(
		s.middleware.NewRequestIDMiddleware(),
		s.middleware.NewLoggingMiddleware(),
		recover.New(recover.Config{EnableStackTrace: s.env.AppEnv == "development"}),
		cors.New(),
	)

	s.handlers = append(s.handlers, classificationHandlers)
	for _, h := range s.handlers {
		h.Start(s.engine)
	}
}

func (s *Server) Run() error {
	status := s.backend.Status()
	s.log.WithFields(logrus.Fields{
		"addr":         s.env.Addr(),
		"backend":      s.env.DetectionBackend,
		"model_loaded": status.ModelLoaded,
		"model_path":   status.ModelPath,
	}).Info("Starting classification server")

	return s.engine.Listen(s.env.Addr())
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done, then releases the detection backend.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.engine.ShutdownWithContext(ctx)

	if closeErr := s.backend.Close(); closeErr != nil {
		s.log.Errorf("Error closing detection backend: %v", closeErr)
	}

	if s.env.DetectionBackend == BackendONNX && s.backend.Status().BackendAvailable {
		if destroyErr := onnx.DestroyRuntime(); destroyErr != nil {
			s.log.Errorf("Error destroying ONNX runtime: %v", destroyErr)
		}
	}

	return err
}

func (s *Server) App() *fiber.App {
	return s.engine
}
