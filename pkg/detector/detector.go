package detector

import (
	"context"
	"image"
	"sort"

	"InventoryVision/internal/entity"
)

// Detector is a loaded object-detection model.
//
// Detect runs one inference and must not modify img. ClassNames returns the
// fixed label set of the model; the map must not be mutated by callers.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]entity.RawDetection, error)
	ClassNames() map[int]string
	Device() string
	Close() error
}

// Backend is the model state resolved once at startup. It is either
// unavailable (no model could be loaded) or ready with a Detector.
type Backend struct {
	detector         Detector
	modelPath        string
	runtimeAvailable bool
	loadErr          error
}

func Ready(d Detector, modelPath string) Backend {
	return Backend{detector: d, modelPath: modelPath, runtimeAvailable: true}
}

// Unavailable records why no model is loaded. runtimeAvailable tells whether
// the inference runtime itself could be initialized, so callers can tell a
// missing runtime from a bad model file.
func Unavailable(modelPath string, runtimeAvailable bool, reason error) Backend {
	return Backend{modelPath: modelPath, runtimeAvailable: runtimeAvailable, loadErr: reason}
}

// Detector returns the loaded model and true, or nil and false when the
// backend is unavailable.
func (b Backend) Detector() (Detector, bool) {
	return b.detector, b.detector != nil
}

func (b Backend) LoadError() error {
	return b.loadErr
}

func (b Backend) Status() entity.ModelStatus {
	status := entity.ModelStatus{
		BackendAvailable: b.runtimeAvailable,
		ModelPath:        b.modelPath,
		Device:           "CPU",
	}
	if d, ok := b.Detector(); ok {
		status.ModelLoaded = true
		status.Device = d.Device()
	}
	return status
}

// Classes lists the class names ordered by class id.
func (b Backend) Classes() ([]string, bool) {
	d, ok := b.Detector()
	if !ok {
		return nil, false
	}
	return SortedNames(d.ClassNames()), true
}

func (b Backend) Close() error {
	if d, ok := b.Detector(); ok {
		return d.Close()
	}
	return nil
}

func SortedNames(names map[int]string) []string {
	ids := make([]int, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, names[id])
	}
	return out
}
