package classificationHandler

import (
	"time"

	"InventoryVision/internal/api/classification"
	"InventoryVision/internal/entity"
	contextPkg "InventoryVision/pkg/context"
	"InventoryVision/pkg/handlerUtil"
	"InventoryVision/pkg/log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *ClassificationHandler) Root(ctx *fiber.Ctx) error {
	status := h.classificationService.Status()

	return ctx.JSON(classification.RootResponse{
		Status:           "ok",
		BackendAvailable: status.BackendAvailable,
		ModelLoaded:      status.ModelLoaded,
		ModelPath:        status.ModelPath,
		Device:           status.Device,
	})
}

func (h *ClassificationHandler) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(classification.HealthResponse{
		Status:     "healthy",
		ModelReady: h.classificationService.Status().ModelLoaded,
	})
}

func (h *ClassificationHandler) Classes(ctx *fiber.Ctx) error {
	classes, ok := h.classificationService.Classes()
	if !ok {
		return ctx.JSON(classification.ClassesResponse{
			Available: false,
			Message:   classification.ModelNotLoaded,
			Classes:   []string{},
		})
	}

	numClasses := len(classes)
	return ctx.JSON(classification.ClassesResponse{
		Available:  true,
		NumClasses: &numClasses,
		Classes:    classes,
	})
}

func (h *ClassificationHandler) Classify(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing classification request")

	form, err := ctx.MultipartForm()
	if err != nil {
		return errHandler.Handle(ctx, requestID, classification.ErrInvalidMultipart, ctx.Path(), "parse_multipart")
	}

	files := form.File["file"]
	if len(files) == 0 {
		return errHandler.Handle(ctx, requestID, classification.ErrMissingFile, ctx.Path(), "read_file")
	}

	upload, err := h.utils.ReadUpload(files[0])
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_file")
	}

	h.log.WithFields(log.Fields{
		"request_id":   requestID,
		"path":         ctx.Path(),
		"file_name":    upload.Filename,
		"file_size":    len(upload.Data),
		"content_type": upload.ContentType,
	}).Debug("Processing file upload")

	// A request timeout reaches the backend through c and comes back as a
	// failed result, not as an error.
	result, err := h.classificationService.Classify(c, upload)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "classify")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"success":    result.Success,
		"detections": len(result.Detections),
	}).Info("Classification completed")
	return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
}

// ClassifyBatch always answers 200 once the form is parsed; per-file problems
// are reported inside the results. The batch is bounded by the service's batch
// timeout rather than the request timeout.
func (h *ClassificationHandler) ClassifyBatch(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c := contextPkg.FromFiberCtx(ctx)

	errHandler := handlerUtil.New(h.log)

	form, err := ctx.MultipartForm()
	if err != nil {
		return errHandler.Handle(ctx, requestID, classification.ErrInvalidMultipart, ctx.Path(), "parse_multipart")
	}

	files := form.File["files"]
	if len(files) == 0 {
		return errHandler.Handle(ctx, requestID, classification.ErrNoFiles, ctx.Path(), "read_files")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"files":      len(files),
	}).Debug("Processing batch classification request")

	uploads := make([]entity.Upload, len(files))
	for i, file := range files {
		upload, err := h.utils.ReadUpload(file)
		if err != nil {
			// the item stays in the batch and fails decoding with no data
			h.log.WithFields(log.Fields{
				"request_id": requestID,
				"file_name":  file.Filename,
				"error":      err.Error(),
			}).Warn("Failed to read batch item")
			upload = entity.Upload{Filename: file.Filename, ContentType: file.Header.Get("Content-Type")}
		}
		uploads[i] = upload
	}

	start := time.Now()
	results := h.classificationService.ClassifyBatch(c, uploads)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"files":      len(results),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("Batch classification completed")

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, classification.BatchResponse{Results: results})
}
