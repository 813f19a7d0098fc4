package classificationHandler

import (
	"time"

	classificationService "InventoryVision/internal/api/classification/service"
	"InventoryVision/internal/middleware"
	"InventoryVision/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	wsReadTimeout         = 60 * time.Second
	wsWriteTimeout        = 10 * time.Second
)

type ClassificationHandler struct {
	log                   *logrus.Logger
	middleware            middleware.Middleware
	classificationService classificationService.IClassificationService
	utils                 utils.IUtils
	requestTimeout        time.Duration
}

func New(
	log *logrus.Logger,
	middleware middleware.Middleware,
	cs classificationService.IClassificationService,
	utils utils.IUtils,
	requestTimeout time.Duration,
) *ClassificationHandler {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	return &ClassificationHandler{
		classificationService: cs,
		log:                   log,
		middleware:            middleware,
		utils:                 utils,
		requestTimeout:        requestTimeout,
	}
}

func (h *ClassificationHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Get("/", h.Root)
	srv.Get("/health", h.Health)
	srv.Get("/classes", h.Classes)

	srv.Post("/classify", h.Classify)
	srv.Post("/classify-batch", h.ClassifyBatch)

	classify := srv.Group("/classify")
	classify.Use("/ws", wsMiddleware)
	classify.Get("/ws", websocket.New(h.handleClassifyWebSocket))
}
