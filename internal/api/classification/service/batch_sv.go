package classificationService

import (
	"errors"

	"InventoryVision/internal/api/classification"
	"InventoryVision/internal/entity"
	"InventoryVision/pkg/log"

	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"
)

// ClassifyBatch classifies every upload and returns one result per upload in
// input order. A rejected or failing upload only affects its own entry.
func (s *classificationService) ClassifyBatch(ctx context.Context, uploads []entity.Upload) []entity.BatchItemResult {
	results := make([]entity.BatchItemResult, len(uploads))
	for i, u := range uploads {
		results[i].Filename = u.Filename
	}

	if s.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.batchTimeout)
		defer cancel()
	}

	var g errgroup.Group
	g.SetLimit(s.batchWorkers)

	for i, u := range uploads {
		if err := ctx.Err(); err != nil {
			results[i].Result = *abandoned(err)
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Result = *abandoned(err)
				return nil
			}
			results[i].Result = *s.classifyItem(ctx, u)
			return nil
		})
	}

	g.Wait()

	s.log.WithFields(log.Fields{
		"items":   len(uploads),
		"workers": s.batchWorkers,
	}).Debug("Batch classified")

	return results
}

func (s *classificationService) classifyItem(ctx context.Context, upload entity.Upload) *entity.ClassificationResult {
	result, err := s.Classify(ctx, upload)
	if err != nil {
		s.log.WithFields(log.Fields{
			"filename":     upload.Filename,
			"content_type": upload.ContentType,
			"error":        err.Error(),
		}).Warn("Batch item rejected")
		return failed(err.Error())
	}
	return result
}

func abandoned(err error) *entity.ClassificationResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return failed(classification.BatchDeadlineNotice)
	}
	return failed(err.Error())
}
