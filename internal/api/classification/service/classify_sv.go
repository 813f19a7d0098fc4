package classificationService

import (
	"fmt"
	"image"

	"InventoryVision/internal/api/classification"
	"InventoryVision/internal/entity"
	contextPkg "InventoryVision/pkg/context"
	"InventoryVision/pkg/decoder"
	"InventoryVision/pkg/detector"
	"InventoryVision/pkg/log"

	"golang.org/x/net/context"
)

// Classify returns a protocol error only when the upload itself is rejected
// (content type, size). Anything that goes wrong after that is reported in
// the result.
func (s *classificationService) Classify(ctx context.Context, upload entity.Upload) (*entity.ClassificationResult, error) {
	if !decoder.IsImageContentType(upload.ContentType) {
		return nil, classification.ErrInvalidContentType
	}
	if s.maxFileSize > 0 && int64(len(upload.Data)) > s.maxFileSize {
		return nil, classification.ErrFileTooLarge
	}

	img, err := decoder.DecodeLimited(upload.Data, upload.ContentType, s.maxPixels)
	if err != nil {
		s.log.WithFields(log.Fields{
			"request_id":   contextPkg.GetRequestID(ctx),
			"filename":     upload.Filename,
			"content_type": upload.ContentType,
			"size":         len(upload.Data),
			"error":        err.Error(),
		}).Warn("Failed to decode image")
		return failed(err.Error()), nil
	}

	d, ok := s.backend.Detector()
	if !ok {
		return simulated(), nil
	}

	return s.detect(ctx, d, img, upload.Filename), nil
}

func (s *classificationService) detect(ctx context.Context, d detector.Detector, img image.Image, filename string) (result *entity.ClassificationResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(log.Fields{
				"request_id": contextPkg.GetRequestID(ctx),
				"filename":   filename,
				"panic":      r,
			}).Error("Detection backend panicked")
			result = failed(fmt.Sprintf("detection backend panic: %v", r))
		}
	}()

	raw, err := d.Detect(ctx, img)
	if err != nil {
		s.log.WithFields(log.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"filename":   filename,
			"device":     d.Device(),
			"error":      err.Error(),
		}).Error("Detection failed")
		return failed(err.Error())
	}

	detections, primaryClass, primaryConfidence, err := Normalize(raw, d.ClassNames())
	if err != nil {
		s.log.WithFields(log.Fields{
			"filename": filename,
			"error":    err.Error(),
		}).Error("Failed to normalize detections")
		return failed(err.Error())
	}

	fields := log.Fields{
		"filename":   filename,
		"detections": len(detections),
	}
	if primaryClass != nil {
		fields["primary_class"] = *primaryClass
	}
	s.log.WithFields(fields).Debug("Image classified")

	return &entity.ClassificationResult{
		Success:           true,
		Detections:        detections,
		PrimaryClass:      primaryClass,
		PrimaryConfidence: primaryConfidence,
	}
}

func failed(msg string) *entity.ClassificationResult {
	return &entity.ClassificationResult{
		Success:    false,
		Detections: []entity.Detection{},
		Error:      &msg,
	}
}

func simulated() *entity.ClassificationResult {
	class := classification.SimulatedClass
	confidence := classification.SimulatedConfidence
	notice := classification.SimulatedNotice

	return &entity.ClassificationResult{
		Success: true,
		Detections: []entity.Detection{{
			ClassName:  class,
			Confidence: confidence,
		}},
		PrimaryClass:      &class,
		PrimaryConfidence: &confidence,
		Error:             &notice,
	}
}
