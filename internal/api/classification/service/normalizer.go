package classificationService

import (
	"fmt"
	"sort"

	"InventoryVision/internal/entity"
)

// Normalize resolves class names and orders detections by descending
// confidence. Equal confidences keep the backend order. The primary class and
// confidence are nil when there are no detections.
func Normalize(raw []entity.RawDetection, names map[int]string) ([]entity.Detection, *string, *float64, error) {
	detections := make([]entity.Detection, 0, len(raw))

	for _, r := range raw {
		name, ok := names[r.ClassID]
		if !ok {
			return nil, nil, nil, fmt.Errorf("unknown class id %d", r.ClassID)
		}

		var box *entity.BBox
		if r.BBox != nil {
			b := *r.BBox
			box = &b
		}

		detections = append(detections, entity.Detection{
			ClassName:  name,
			Confidence: r.Confidence,
			BBox:       box,
		})
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	if len(detections) == 0 {
		return detections, nil, nil, nil
	}

	primaryClass := detections[0].ClassName
	primaryConfidence := detections[0].Confidence

	return detections, &primaryClass, &primaryConfidence, nil
}
