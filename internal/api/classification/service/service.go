package classificationService

import (
	"time"

	"InventoryVision/internal/entity"
	"InventoryVision/pkg/decoder"
	"InventoryVision/pkg/detector"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type IClassificationService interface {
	Classify(ctx context.Context, upload entity.Upload) (*entity.ClassificationResult, error)
	ClassifyBatch(ctx context.Context, uploads []entity.Upload) []entity.BatchItemResult
	Classes() ([]string, bool)
	Status() entity.ModelStatus
}

type Option func(*classificationService)

// WithBatchWorkers sets how many batch items are classified at once.
func WithBatchWorkers(n int) Option {
	return func(s *classificationService) {
		if n > 0 {
			s.batchWorkers = n
		}
	}
}

// WithBatchTimeout bounds a whole batch. Zero means no bound.
func WithBatchTimeout(d time.Duration) Option {
	return func(s *classificationService) {
		s.batchTimeout = d
	}
}

// WithMaxFileSize rejects uploads larger than n bytes. Zero means no limit.
func WithMaxFileSize(n int64) Option {
	return func(s *classificationService) {
		s.maxFileSize = n
	}
}

// WithMaxImagePixels rejects images whose declared width*height exceeds n.
// Zero or less disables the check.
func WithMaxImagePixels(n int64) Option {
	return func(s *classificationService) {
		s.maxPixels = n
	}
}

type classificationService struct {
	log          *logrus.Logger
	backend      detector.Backend
	batchWorkers int
	batchTimeout time.Duration
	maxFileSize  int64
	maxPixels    int64
}

func NewClassificationService(
	log *logrus.Logger,
	backend detector.Backend,
	opts ...Option,
) IClassificationService {
	s := &classificationService{
		log:          log,
		backend:      backend,
		batchWorkers: 1,
		maxPixels:    decoder.DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *classificationService) Classes() ([]string, bool) {
	return s.backend.Classes()
}

func (s *classificationService) Status() entity.ModelStatus {
	return s.backend.Status()
}
